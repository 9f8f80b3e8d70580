package lending

import (
	"context"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/campuslib/circulation-engine-go/circulation"
)

// Audit action and target vocabulary.
const (
	ActionUnblacklistStudent = "unblacklist_student"

	TargetStudent = "student"
)

const logMsgAuditAppendFailed = "lending: audit append failed, entry dropped"

// adminActionAppender is the narrow slice of storage the audit log needs.
type adminActionAppender interface {
	AppendAdminAction(ctx context.Context, action circulation.AdminAction) error
}

// AuditLog writes append-only audit entries for administrative operations.
// Writes are best-effort: failures are logged at warn level and swallowed,
// so an audit outage never blocks the operation it documents.
type AuditLog struct {
	appender adminActionAppender
	logger   circulation.Logger
	clock    Clock
}

// AuditOption configures an AuditLog.
type AuditOption func(*AuditLog)

// WithAuditClock replaces the wall clock, mainly for tests.
func WithAuditClock(clock Clock) AuditOption {
	return func(a *AuditLog) {
		a.clock = clock
	}
}

// NewAuditLog creates an audit log writer. The logger may be nil.
func NewAuditLog(appender adminActionAppender, logger circulation.Logger, opts ...AuditOption) *AuditLog {
	a := &AuditLog{
		appender: appender,
		logger:   logger,
		clock:    time.Now,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Record appends one audit entry. Marshal or storage failures are logged
// and swallowed.
func (a *AuditLog) Record(
	ctx context.Context,
	adminID uuid.UUID,
	actionType string,
	targetType string,
	targetID uuid.UUID,
	details any,
) {
	payload, marshalErr := jsoniter.ConfigFastest.Marshal(details)
	if marshalErr != nil {
		a.warn(logMsgAuditAppendFailed, "error", marshalErr.Error(), "action_type", actionType)
		return
	}

	action := circulation.AdminAction{
		ID:          uuid.New(),
		AdminID:     adminID,
		ActionType:  actionType,
		TargetType:  targetType,
		TargetID:    targetID,
		DetailsJSON: payload,
		CreatedAt:   circulation.ToInstant(a.clock()),
	}

	if appendErr := a.appender.AppendAdminAction(ctx, action); appendErr != nil {
		a.warn(logMsgAuditAppendFailed, "error", appendErr.Error(), "action_type", actionType)
	}
}

func (a *AuditLog) warn(msg string, args ...any) {
	if a.logger != nil {
		a.logger.Warn(msg, args...)
	}
}

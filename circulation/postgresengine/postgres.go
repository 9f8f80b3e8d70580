package postgresengine

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // driver import
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/campuslib/circulation-engine-go/circulation"
	"github.com/campuslib/circulation-engine-go/circulation/postgresengine/internal/adapters"
)

const (
	dialectPostgres = "postgres"

	defaultBooksTable         = "books"
	defaultCopiesTable        = "copies"
	defaultStudentsTable      = "students"
	defaultBorrowRecordsTable = "borrow_records"
	defaultAdminActionsTable  = "admin_actions"

	colID          = "id"
	colTitle       = "title"
	colAuthor      = "author"
	colCategory    = "category"
	colPeriodValue = "due_period_value"
	colPeriodUnit  = "due_period_unit"

	colBookID      = "book_id"
	colCatalogCode = "catalog_code"
	colStatus      = "status"

	colName              = "name"
	colClass             = "class"
	colContact           = "contact"
	colBlacklisted       = "blacklisted"
	colBlacklistedUntil  = "blacklisted_until"
	colBlacklistReason   = "blacklist_reason"
	colUnblacklistReason = "unblacklist_reason"
	colUnblacklistedBy   = "unblacklisted_by"
	colUnblacklistedAt   = "unblacklisted_at"

	colCopyID       = "copy_id"
	colStudentID    = "student_id"
	colBorrowedAt   = "borrowed_at"
	colDueAt        = "due_at"
	colReturnedAt   = "returned_at"
	colStudentName  = "student_name"
	colStudentClass = "student_class"
	colBookTitle    = "book_title"
	colBookAuthor   = "book_author"

	colAdminID    = "admin_id"
	colActionType = "action_type"
	colTargetType = "target_type"
	colTargetID   = "target_id"
	colDetails    = "details"
	colCreatedAt  = "created_at"

	emptyJSONObject = "{}"
)

type sqlQueryString = string

// executor is the common query surface of a connection and a transaction.
type executor interface {
	Query(ctx context.Context, query string) (adapters.DBRows, error)
	Exec(ctx context.Context, query string) (adapters.DBResult, error)
}

type tableNames struct {
	books         string
	copies        string
	students      string
	borrowRecords string
	adminActions  string
}

func defaultTableNames() tableNames {
	return tableNames{
		books:         defaultBooksTable,
		copies:        defaultCopiesTable,
		students:      defaultStudentsTable,
		borrowRecords: defaultBorrowRecordsTable,
		adminActions:  defaultAdminActionsTable,
	}
}

func tableNamesWithPrefix(prefix string) tableNames {
	return tableNames{
		books:         prefix + defaultBooksTable,
		copies:        prefix + defaultCopiesTable,
		students:      prefix + defaultStudentsTable,
		borrowRecords: prefix + defaultBorrowRecordsTable,
		adminActions:  prefix + defaultAdminActionsTable,
	}
}

// Store is the PostgreSQL-backed circulation storage. It leverages a
// database adapter and supports customizable logging, metrics, tracing and
// table naming.
type Store struct {
	db               adapters.DBAdapter
	tables           tableNames
	logger           circulation.Logger
	contextualLogger circulation.ContextualLogger
	metricsCollector circulation.MetricsCollector
	tracingCollector circulation.TracingCollector
}

// NewStoreFromPGXPool creates a new Store using a pgx pool with optional configuration.
func NewStoreFromPGXPool(db *pgxpool.Pool, options ...Option) (*Store, error) {
	if db == nil {
		return nil, circulation.ErrNilDatabaseConnection
	}

	return newStore(adapters.NewPGXAdapter(db), options...)
}

// NewStoreFromSQLDB creates a new Store using a sql.DB with optional configuration.
func NewStoreFromSQLDB(db *sql.DB, options ...Option) (*Store, error) {
	if db == nil {
		return nil, circulation.ErrNilDatabaseConnection
	}

	return newStore(adapters.NewSQLAdapter(db), options...)
}

// NewStoreFromSQLX creates a new Store using a sqlx.DB with optional configuration.
func NewStoreFromSQLX(db *sqlx.DB, options ...Option) (*Store, error) {
	if db == nil {
		return nil, circulation.ErrNilDatabaseConnection
	}

	return newStore(adapters.NewSQLXAdapter(db), options...)
}

func newStore(db adapters.DBAdapter, options ...Option) (*Store, error) {
	s := &Store{
		db:     db,
		tables: defaultTableNames(),
	}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// WithinTx runs fn inside one database transaction. The transaction commits
// when fn returns nil and rolls back otherwise. Serialization failures and
// deadlocks surface as circulation.ErrTxConflict.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, uow circulation.UnitOfWork) error) error {
	span, ctx := s.startTxSpan(ctx)
	start := time.Now()

	tx, beginErr := s.db.BeginTx(ctx)
	if beginErr != nil {
		s.logError(logMsgBeginTxFailed, beginErr)
		s.finishTxSpanError(span, errorTypeBegin)

		return s.mapStorageError(beginErr)
	}

	uow := &unitOfWork{store: s, tx: tx}

	if fnErr := fn(ctx, uow); fnErr != nil {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil {
			s.logWarn(logMsgRollbackFailed, logAttrError, rollbackErr.Error())
		}

		s.recordTxMetrics(ctx, time.Since(start), statusError, errors.Is(fnErr, circulation.ErrTxConflict))
		s.finishTxSpanError(span, errorTypeUsecase)

		return fnErr
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		s.logError(logMsgCommitFailed, commitErr)
		mappedErr := s.mapStorageError(commitErr)
		s.recordTxMetrics(ctx, time.Since(start), statusError, errors.Is(mappedErr, circulation.ErrTxConflict))
		s.finishTxSpanError(span, errorTypeCommit)

		return mappedErr
	}

	duration := time.Since(start)
	s.logOperationContext(ctx, logMsgTxCommitted, logAttrDurationMS, s.toMilliseconds(duration))
	s.recordTxMetrics(ctx, duration, statusSuccess, false)
	s.finishTxSpanSuccess(span, duration)

	return nil
}

// GetBook returns a book by id, outside any transaction.
func (s *Store) GetBook(ctx context.Context, bookID uuid.UUID) (circulation.Book, error) {
	return s.findBook(ctx, s.db, bookID)
}

// GetStudent returns a student by id, outside any transaction.
func (s *Store) GetStudent(ctx context.Context, studentID uuid.UUID) (circulation.Student, error) {
	return s.findStudent(ctx, s.db, studentID, false)
}

// GetBorrowRecords returns the full ledger ordered by borrow instant.
func (s *Store) GetBorrowRecords(ctx context.Context) ([]circulation.BorrowRecord, error) {
	stmt := s.builder().
		From(s.tables.borrowRecords).
		Select(recordColumns()...).
		Order(goqu.I(colBorrowedAt).Asc(), goqu.I(colID).Asc())

	return s.queryRecords(ctx, s.db, stmt)
}

// InsertBook adds a book to the catalog.
func (s *Store) InsertBook(ctx context.Context, book circulation.Book) error {
	stmt := s.builder().
		Insert(s.tables.books).
		Rows(goqu.Record{
			colID:          book.ID.String(),
			colTitle:       book.Title,
			colAuthor:      book.Author,
			colCategory:    book.Category,
			colPeriodValue: book.DefaultPeriod.Value,
			colPeriodUnit:  string(book.DefaultPeriod.Unit),
		})

	return s.execInsert(ctx, s.db, stmt)
}

// InsertCopy adds a physical copy to the catalog.
func (s *Store) InsertCopy(ctx context.Context, copyRow circulation.Copy) error {
	stmt := s.builder().
		Insert(s.tables.copies).
		Rows(goqu.Record{
			colID:          copyRow.ID.String(),
			colBookID:      copyRow.BookID.String(),
			colCatalogCode: copyRow.CatalogCode,
			colStatus:      string(copyRow.Status),
		})

	return s.execInsert(ctx, s.db, stmt)
}

// InsertStudent adds a student to the roster.
func (s *Store) InsertStudent(ctx context.Context, student circulation.Student) error {
	stmt := s.builder().
		Insert(s.tables.students).
		Rows(studentRecord(student))

	return s.execInsert(ctx, s.db, stmt)
}

// AppendAdminAction appends an audit entry. Best-effort semantics live in
// the caller; the store itself reports failures normally.
func (s *Store) AppendAdminAction(ctx context.Context, action circulation.AdminAction) error {
	details := string(action.DetailsJSON)
	if details == "" {
		details = emptyJSONObject
	}

	stmt := s.builder().
		Insert(s.tables.adminActions).
		Rows(goqu.Record{
			colID:         action.ID.String(),
			colAdminID:    action.AdminID.String(),
			colActionType: action.ActionType,
			colTargetType: action.TargetType,
			colTargetID:   action.TargetID.String(),
			colDetails:    details,
			colCreatedAt:  action.CreatedAt,
		})

	return s.execInsert(ctx, s.db, stmt)
}

// ListAdminActions returns the audit entries in append order.
func (s *Store) ListAdminActions(ctx context.Context) ([]circulation.AdminAction, error) {
	stmt := s.builder().
		From(s.tables.adminActions).
		Select(colID, colAdminID, colActionType, colTargetType, colTargetID, colDetails, colCreatedAt).
		Order(goqu.I(colCreatedAt).Asc(), goqu.I(colID).Asc())

	sqlQuery, buildErr := s.toSQL(stmt)
	if buildErr != nil {
		return nil, buildErr
	}

	rows, queryErr := s.executeQuery(ctx, s.db, sqlQuery)
	if queryErr != nil {
		return nil, queryErr
	}
	defer s.closeRows(rows)

	actions := make([]circulation.AdminAction, 0)

	for rows.Next() {
		action, scanErr := scanAdminAction(rows)
		if scanErr != nil {
			return nil, s.mapStorageError(scanErr)
		}

		actions = append(actions, action)
	}

	return actions, nil
}

// builder returns the goqu dialect builder for all queries of this store.
func (s *Store) builder() goqu.DialectWrapper {
	return goqu.Dialect(dialectPostgres)
}

func (s *Store) toSQL(stmt interface{ ToSQL() (string, []interface{}, error) }) (sqlQueryString, error) {
	sqlQuery, _, toSQLErr := stmt.ToSQL()
	if toSQLErr != nil {
		s.logError(logMsgBuildQueryFailed, toSQLErr)
		return "", errors.Join(circulation.ErrTxFailed, toSQLErr)
	}

	return sqlQuery, nil
}

// executeQuery executes a select and logs it with timing.
func (s *Store) executeQuery(ctx context.Context, ex executor, sqlQuery sqlQueryString) (adapters.DBRows, error) {
	start := time.Now()
	rows, queryErr := ex.Query(ctx, sqlQuery)
	s.logQueryWithDuration(ctx, sqlQuery, time.Since(start))

	if queryErr != nil {
		s.logError(logMsgQueryFailed, queryErr, logAttrQuery, sqlQuery)
		return nil, s.mapStorageError(queryErr)
	}

	return rows, nil
}

// executeExec executes a statement and logs it with timing.
func (s *Store) executeExec(ctx context.Context, ex executor, sqlQuery sqlQueryString) (int64, error) {
	start := time.Now()
	result, execErr := ex.Exec(ctx, sqlQuery)
	s.logQueryWithDuration(ctx, sqlQuery, time.Since(start))

	if execErr != nil {
		s.logError(logMsgExecFailed, execErr, logAttrQuery, sqlQuery)
		return 0, s.mapStorageError(execErr)
	}

	rowsAffected, rowsErr := result.RowsAffected()
	if rowsErr != nil {
		s.logError(logMsgRowsAffectedFailed, rowsErr)
		return 0, s.mapStorageError(rowsErr)
	}

	return rowsAffected, nil
}

func (s *Store) execInsert(ctx context.Context, ex executor, stmt *goqu.InsertDataset) error {
	sqlQuery, buildErr := s.toSQL(stmt)
	if buildErr != nil {
		return buildErr
	}

	_, execErr := s.executeExec(ctx, ex, sqlQuery)

	return execErr
}

// mapStorageError translates driver failures into the infrastructure error
// taxonomy. Retryable conflicts keep their cause attached.
func (s *Store) mapStorageError(err error) error {
	if adapters.IsRetryableTxError(err) {
		return errors.Join(circulation.ErrTxConflict, err)
	}

	return errors.Join(circulation.ErrTxFailed, err)
}

// closeRows safely closes database rows and logs any errors.
func (s *Store) closeRows(rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		s.logWarn(logMsgCloseRowsFailed, logAttrError, closeErr.Error())
	}
}

// findBook loads a book through the given executor.
func (s *Store) findBook(ctx context.Context, ex executor, bookID uuid.UUID) (circulation.Book, error) {
	stmt := s.builder().
		From(s.tables.books).
		Select(colID, colTitle, colAuthor, colCategory, colPeriodValue, colPeriodUnit).
		Where(goqu.Ex{colID: bookID.String()})

	sqlQuery, buildErr := s.toSQL(stmt)
	if buildErr != nil {
		return circulation.Book{}, buildErr
	}

	rows, queryErr := s.executeQuery(ctx, ex, sqlQuery)
	if queryErr != nil {
		return circulation.Book{}, queryErr
	}
	defer s.closeRows(rows)

	if !rows.Next() {
		return circulation.Book{}, circulation.ErrBookNotFound
	}

	return scanBook(rows)
}

// findStudent loads a student through the given executor, optionally
// locking the row for the surrounding transaction.
func (s *Store) findStudent(ctx context.Context, ex executor, studentID uuid.UUID, forUpdate bool) (circulation.Student, error) {
	stmt := s.builder().
		From(s.tables.students).
		Select(studentColumns()...).
		Where(goqu.Ex{colID: studentID.String()})

	if forUpdate {
		stmt = stmt.ForUpdate(exp.Wait)
	}

	sqlQuery, buildErr := s.toSQL(stmt)
	if buildErr != nil {
		return circulation.Student{}, buildErr
	}

	rows, queryErr := s.executeQuery(ctx, ex, sqlQuery)
	if queryErr != nil {
		return circulation.Student{}, queryErr
	}
	defer s.closeRows(rows)

	if !rows.Next() {
		return circulation.Student{}, circulation.ErrStudentNotFound
	}

	return scanStudent(rows)
}

func (s *Store) queryRecords(ctx context.Context, ex executor, stmt *goqu.SelectDataset) ([]circulation.BorrowRecord, error) {
	sqlQuery, buildErr := s.toSQL(stmt)
	if buildErr != nil {
		return nil, buildErr
	}

	rows, queryErr := s.executeQuery(ctx, ex, sqlQuery)
	if queryErr != nil {
		return nil, queryErr
	}
	defer s.closeRows(rows)

	records := make([]circulation.BorrowRecord, 0)

	for rows.Next() {
		record, scanErr := scanRecord(rows)
		if scanErr != nil {
			return nil, scanErr
		}

		records = append(records, record)
	}

	return records, nil
}

func studentColumns() []any {
	return []any{
		colID, colName, colClass, colContact,
		colBlacklisted, colBlacklistedUntil, colBlacklistReason,
		colUnblacklistReason, colUnblacklistedBy, colUnblacklistedAt,
	}
}

func recordColumns() []any {
	return []any{
		colID, colCopyID, colStudentID, colBorrowedAt, colDueAt, colReturnedAt, colStatus,
		colStudentName, colStudentClass, colBookTitle, colBookAuthor, colCatalogCode,
	}
}

func studentRecord(student circulation.Student) goqu.Record {
	record := goqu.Record{
		colID:                student.ID.String(),
		colName:              student.Name,
		colClass:             student.Class,
		colContact:           student.Contact,
		colBlacklisted:       student.Blacklisted,
		colBlacklistReason:   student.BlacklistReason,
		colUnblacklistReason: student.UnblacklistReason,
		colBlacklistedUntil:  nil,
		colUnblacklistedBy:   nil,
		colUnblacklistedAt:   nil,
	}

	if student.BlacklistedUntil != nil {
		record[colBlacklistedUntil] = *student.BlacklistedUntil
	}
	if student.UnblacklistedBy != nil {
		record[colUnblacklistedBy] = student.UnblacklistedBy.String()
	}
	if student.UnblacklistedAt != nil {
		record[colUnblacklistedAt] = *student.UnblacklistedAt
	}

	return record
}

func scanBook(rows adapters.DBRows) (circulation.Book, error) {
	var (
		idRaw       string
		title       string
		author      string
		category    string
		periodValue int
		periodUnit  string
	)

	if err := rows.Scan(&idRaw, &title, &author, &category, &periodValue, &periodUnit); err != nil {
		return circulation.Book{}, errors.Join(circulation.ErrTxFailed, err)
	}

	id, parseErr := uuid.Parse(idRaw)
	if parseErr != nil {
		return circulation.Book{}, errors.Join(circulation.ErrTxFailed, parseErr)
	}

	return circulation.Book{
		ID:       id,
		Title:    title,
		Author:   author,
		Category: category,
		DefaultPeriod: circulation.DuePeriod{
			Value: periodValue,
			Unit:  circulation.PeriodUnit(periodUnit),
		},
	}, nil
}

func scanCopy(rows adapters.DBRows) (circulation.Copy, error) {
	var (
		idRaw       string
		bookIDRaw   string
		catalogCode string
		status      string
	)

	if err := rows.Scan(&idRaw, &bookIDRaw, &catalogCode, &status); err != nil {
		return circulation.Copy{}, errors.Join(circulation.ErrTxFailed, err)
	}

	id, idErr := uuid.Parse(idRaw)
	if idErr != nil {
		return circulation.Copy{}, errors.Join(circulation.ErrTxFailed, idErr)
	}

	bookID, bookIDErr := uuid.Parse(bookIDRaw)
	if bookIDErr != nil {
		return circulation.Copy{}, errors.Join(circulation.ErrTxFailed, bookIDErr)
	}

	return circulation.Copy{
		ID:          id,
		BookID:      bookID,
		CatalogCode: catalogCode,
		Status:      circulation.CopyStatus(status),
	}, nil
}

func scanStudent(rows adapters.DBRows) (circulation.Student, error) {
	var (
		idRaw             string
		name              string
		class             string
		contact           string
		blacklisted       bool
		blacklistedUntil  sql.NullTime
		blacklistReason   string
		unblacklistReason string
		unblacklistedBy   sql.NullString
		unblacklistedAt   sql.NullTime
	)

	if err := rows.Scan(
		&idRaw, &name, &class, &contact,
		&blacklisted, &blacklistedUntil, &blacklistReason,
		&unblacklistReason, &unblacklistedBy, &unblacklistedAt,
	); err != nil {
		return circulation.Student{}, errors.Join(circulation.ErrTxFailed, err)
	}

	id, parseErr := uuid.Parse(idRaw)
	if parseErr != nil {
		return circulation.Student{}, errors.Join(circulation.ErrTxFailed, parseErr)
	}

	student := circulation.Student{
		ID:                id,
		Name:              name,
		Class:             class,
		Contact:           contact,
		Blacklisted:       blacklisted,
		BlacklistReason:   blacklistReason,
		UnblacklistReason: unblacklistReason,
	}

	if blacklistedUntil.Valid {
		until := blacklistedUntil.Time
		student.BlacklistedUntil = &until
	}
	if unblacklistedBy.Valid {
		adminID, adminErr := uuid.Parse(unblacklistedBy.String)
		if adminErr != nil {
			return circulation.Student{}, errors.Join(circulation.ErrTxFailed, adminErr)
		}
		student.UnblacklistedBy = &adminID
	}
	if unblacklistedAt.Valid {
		at := unblacklistedAt.Time
		student.UnblacklistedAt = &at
	}

	return student, nil
}

func scanRecord(rows adapters.DBRows) (circulation.BorrowRecord, error) {
	var (
		idRaw        string
		copyIDRaw    string
		studentIDRaw string
		borrowedAt   time.Time
		dueAt        time.Time
		returnedAt   sql.NullTime
		status       string
		studentName  string
		studentClass string
		bookTitle    string
		bookAuthor   string
		catalogCode  string
	)

	if err := rows.Scan(
		&idRaw, &copyIDRaw, &studentIDRaw, &borrowedAt, &dueAt, &returnedAt, &status,
		&studentName, &studentClass, &bookTitle, &bookAuthor, &catalogCode,
	); err != nil {
		return circulation.BorrowRecord{}, errors.Join(circulation.ErrTxFailed, err)
	}

	id, idErr := uuid.Parse(idRaw)
	if idErr != nil {
		return circulation.BorrowRecord{}, errors.Join(circulation.ErrTxFailed, idErr)
	}

	copyID, copyErr := uuid.Parse(copyIDRaw)
	if copyErr != nil {
		return circulation.BorrowRecord{}, errors.Join(circulation.ErrTxFailed, copyErr)
	}

	studentID, studentErr := uuid.Parse(studentIDRaw)
	if studentErr != nil {
		return circulation.BorrowRecord{}, errors.Join(circulation.ErrTxFailed, studentErr)
	}

	record := circulation.BorrowRecord{
		ID:           id,
		CopyID:       copyID,
		StudentID:    studentID,
		BorrowedAt:   borrowedAt,
		DueAt:        dueAt,
		Status:       circulation.RecordStatus(status),
		StudentName:  studentName,
		StudentClass: studentClass,
		BookTitle:    bookTitle,
		BookAuthor:   bookAuthor,
		CatalogCode:  catalogCode,
	}

	if returnedAt.Valid {
		at := returnedAt.Time
		record.ReturnedAt = &at
	}

	return record, nil
}

func scanAdminAction(rows adapters.DBRows) (circulation.AdminAction, error) {
	var (
		idRaw      string
		adminIDRaw string
		actionType string
		targetType string
		targetRaw  string
		details    []byte
		createdAt  time.Time
	)

	if err := rows.Scan(&idRaw, &adminIDRaw, &actionType, &targetType, &targetRaw, &details, &createdAt); err != nil {
		return circulation.AdminAction{}, err
	}

	id, idErr := uuid.Parse(idRaw)
	if idErr != nil {
		return circulation.AdminAction{}, idErr
	}

	adminID, adminErr := uuid.Parse(adminIDRaw)
	if adminErr != nil {
		return circulation.AdminAction{}, adminErr
	}

	targetID, targetErr := uuid.Parse(targetRaw)
	if targetErr != nil {
		return circulation.AdminAction{}, targetErr
	}

	return circulation.AdminAction{
		ID:          id,
		AdminID:     adminID,
		ActionType:  actionType,
		TargetType:  targetType,
		TargetID:    targetID,
		DetailsJSON: details,
		CreatedAt:   createdAt,
	}, nil
}

// Ensure Store implements the storage contract.
var _ circulation.Storage = (*Store)(nil)

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ZhengyiNLP/sister-expense-tracker/models"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// SQLStore implements the repositories on PostgreSQL or SQLite.
// Queries are written with ? placeholders and rebound for PostgreSQL.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// OpenSQLStore connects, applies migrations and returns the store.
func OpenSQLStore(ctx context.Context, dialect Dialect, dsn string) (*SQLStore, error) {
	const op = "repository.OpenSQLStore"

	var driverName string
	switch dialect {
	case DialectPostgres:
		driverName = "postgres"
	case DialectSQLite:
		driverName = "sqlite"
		dsn = withSQLitePragmas(dsn)
	default:
		return nil, fmt.Errorf("%s: unsupported dialect %q", op, dialect)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if dialect == DialectSQLite {
		// one connection keeps :memory: databases shared and serializes writers
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := Migrate(db, dialect); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return NewSQLStore(db, dialect), nil
}

func withSQLitePragmas(dsn string) string {
	if strings.Contains(dsn, "_pragma=foreign_keys") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func (s *SQLStore) DB() *sql.DB { return s.db }

func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) Repositories() *Repositories {
	repos := &Repositories{Users: s, Records: s, ResetTokens: s}
	repos.AddCloser(s)
	return repos
}

func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23503"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
	}
	return false
}

const userColumns = "id, username, email, name, password_hash, created_at, last_login"

func scanUser(row interface{ Scan(...interface{}) error }) (*models.User, error) {
	var (
		u         models.User
		lastLogin sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Name, &u.PasswordHash, &u.CreatedAt, &lastLogin); err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLogin = &t
	}
	return &u, nil
}

func (s *SQLStore) CreateUser(ctx context.Context, u *models.User) error {
	const op = "repository.sql.CreateUser"

	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer tx.Rollback()

	// usernames and emails share one login namespace
	var taken int
	err = tx.QueryRowContext(ctx, s.rebind(`
		SELECT COUNT(*) FROM users
		WHERE username IN (?, ?) OR email IN (?, ?)`),
		u.Username, u.Email, u.Username, u.Email,
	).Scan(&taken)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if taken > 0 {
		return ErrConflict
	}

	err = tx.QueryRowContext(ctx, s.rebind(`
		INSERT INTO users (username, email, name, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`),
		u.Username, u.Email, u.Name, u.PasswordHash, u.CreatedAt.UTC(),
	).Scan(&u.ID)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *SQLStore) getUser(ctx context.Context, op, where string, arg interface{}) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, s.rebind("SELECT "+userColumns+" FROM users WHERE "+where+" = ?"), arg)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

func (s *SQLStore) GetUserByID(ctx context.Context, id int) (*models.User, error) {
	return s.getUser(ctx, "repository.sql.GetUserByID", "id", id)
}

func (s *SQLStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.getUser(ctx, "repository.sql.GetUserByUsername", "username", username)
}

func (s *SQLStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, "repository.sql.GetUserByEmail", "email", email)
}

func (s *SQLStore) UpdatePassword(ctx context.Context, id int, passwordHash string) error {
	const op = "repository.sql.UpdatePassword"
	res, err := s.db.ExecContext(ctx, s.rebind("UPDATE users SET password_hash = ? WHERE id = ?"), passwordHash, id)
	return expectOneRow(op, res, err)
}

func (s *SQLStore) TouchLastLogin(ctx context.Context, id int, at time.Time) error {
	const op = "repository.sql.TouchLastLogin"
	res, err := s.db.ExecContext(ctx, s.rebind("UPDATE users SET last_login = ? WHERE id = ?"), at.UTC(), id)
	return expectOneRow(op, res, err)
}

func expectOneRow(op string, res sql.Result, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) CountUsers(ctx context.Context) (int, error) {
	const op = "repository.sql.CountUsers"
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&n); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

func (s *SQLStore) CreateRecord(ctx context.Context, r *models.Record) error {
	const op = "repository.sql.CreateRecord"

	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	err := s.db.QueryRowContext(ctx, s.rebind(`
		INSERT INTO records (user_id, type, amount, category, date, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		r.UserID, string(r.Type), r.Amount, r.Category, r.Date, r.Note, r.CreatedAt.UTC(),
	).Scan(&r.ID)
	if isForeignKeyViolation(err) {
		return ErrUnknownOwner
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *SQLStore) ListRecords(ctx context.Context, userID int) ([]models.Record, error) {
	const op = "repository.sql.ListRecords"

	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, user_id, type, amount, category, date, note, created_at
		FROM records
		WHERE user_id = ?
		ORDER BY date DESC, created_at DESC, id DESC`), userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	records := make([]models.Record, 0)
	for rows.Next() {
		var (
			r       models.Record
			recType string
		)
		if err := rows.Scan(&r.ID, &r.UserID, &recType, &r.Amount, &r.Category, &r.Date, &r.Note, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		r.Type = models.RecordType(recType)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return records, nil
}

func (s *SQLStore) DeleteRecord(ctx context.Context, userID, id int) (bool, error) {
	const op = "repository.sql.DeleteRecord"
	res, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM records WHERE id = ? AND user_id = ?"), id, userID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n > 0, nil
}

func (s *SQLStore) DeleteAllRecords(ctx context.Context, userID int) (int64, error) {
	const op = "repository.sql.DeleteAllRecords"
	res, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM records WHERE user_id = ?"), userID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

func (s *SQLStore) CreateResetToken(ctx context.Context, t *models.ResetToken) error {
	const op = "repository.sql.CreateResetToken"
	err := s.db.QueryRowContext(ctx, s.rebind(`
		INSERT INTO reset_tokens (user_id, token, created_at, expires_at)
		VALUES (?, ?, ?, ?)
		RETURNING id`),
		t.UserID, t.Token, t.CreatedAt.UTC(), t.ExpiresAt.UTC(),
	).Scan(&t.ID)
	switch {
	case isUniqueViolation(err):
		return ErrConflict
	case isForeignKeyViolation(err):
		return ErrUnknownOwner
	case err != nil:
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *SQLStore) GetResetToken(ctx context.Context, token string) (*models.ResetToken, error) {
	const op = "repository.sql.GetResetToken"
	var t models.ResetToken
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id, user_id, token, created_at, expires_at
		FROM reset_tokens
		WHERE token = ?`), token,
	).Scan(&t.ID, &t.UserID, &t.Token, &t.CreatedAt, &t.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &t, nil
}

func (s *SQLStore) DeleteResetToken(ctx context.Context, token string) error {
	const op = "repository.sql.DeleteResetToken"
	if _, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM reset_tokens WHERE token = ?"), token); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *SQLStore) TakeResetToken(ctx context.Context, token string) (*models.ResetToken, error) {
	const op = "repository.sql.TakeResetToken"
	var t models.ResetToken
	err := s.db.QueryRowContext(ctx, s.rebind(`
		DELETE FROM reset_tokens
		WHERE token = ?
		RETURNING id, user_id, token, created_at, expires_at`), token,
	).Scan(&t.ID, &t.UserID, &t.Token, &t.CreatedAt, &t.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &t, nil
}

func (s *SQLStore) PurgeExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	const op = "repository.sql.PurgeExpiredResetTokens"
	res, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM reset_tokens WHERE expires_at <= ?"), now.UTC())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

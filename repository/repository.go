package repository

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/ZhengyiNLP/sister-expense-tracker/models"
)

var (
	// ErrConflict is returned when a unique username, email or token already exists.
	ErrConflict = errors.New("repository: already exists")
	// ErrUnknownOwner is returned when a record references a user that does not exist.
	ErrUnknownOwner = errors.New("repository: owner does not exist")
	// ErrNotFound is returned by updates that matched no row.
	ErrNotFound = errors.New("repository: not found")
)

// Lookups return (nil, nil) when nothing matches.
type UserRepository interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByID(ctx context.Context, id int) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdatePassword(ctx context.Context, id int, passwordHash string) error
	TouchLastLogin(ctx context.Context, id int, at time.Time) error
	CountUsers(ctx context.Context) (int, error)
}

type RecordRepository interface {
	CreateRecord(ctx context.Context, r *models.Record) error
	// ListRecords returns the owner's records by date, then creation time, newest first.
	ListRecords(ctx context.Context, userID int) ([]models.Record, error)
	DeleteRecord(ctx context.Context, userID, id int) (bool, error)
	DeleteAllRecords(ctx context.Context, userID int) (int64, error)
}

type ResetTokenRepository interface {
	CreateResetToken(ctx context.Context, t *models.ResetToken) error
	GetResetToken(ctx context.Context, token string) (*models.ResetToken, error)
	DeleteResetToken(ctx context.Context, token string) error
	// TakeResetToken removes the token and returns it. Of concurrent callers
	// only one gets the row; the rest get (nil, nil).
	TakeResetToken(ctx context.Context, token string) (*models.ResetToken, error)
	PurgeExpiredResetTokens(ctx context.Context, now time.Time) (int64, error)
}

// Repositories bundles the repositories of one opened store.
type Repositories struct {
	Users       UserRepository
	Records     RecordRepository
	ResetTokens ResetTokenRepository

	closers []io.Closer
}

// AddCloser registers a resource released by Close, in reverse order.
func (r *Repositories) AddCloser(c io.Closer) {
	r.closers = append(r.closers, c)
}

func (r *Repositories) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

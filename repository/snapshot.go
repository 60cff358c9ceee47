package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ZhengyiNLP/sister-expense-tracker/models"
)

// Document names inside a BlobStore.
const (
	UsersDocument       = "users.json"
	RecordsDocument     = "records.json"
	ResetTokensDocument = "resetTokens.json"
)

type userDoc struct {
	ID        int        `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	Name      string     `json:"name,omitempty"`
	Password  string     `json:"password"`
	CreatedAt time.Time  `json:"created_at"`
	LastLogin *time.Time `json:"last_login"`
}

type recordDoc struct {
	ID        int       `json:"id"`
	UserID    int       `json:"user_id"`
	Type      string    `json:"type"`
	Amount    float64   `json:"amount"`
	Category  string    `json:"category"`
	Date      string    `json:"date"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"created_at"`
}

type resetTokenDoc struct {
	ID        int       `json:"id"`
	UserID    int       `json:"userId"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type snapshot struct {
	users   []models.User
	records []models.Record
	tokens  []models.ResetToken
}

func loadSnapshot(ctx context.Context, blobs BlobStore) (*snapshot, error) {
	var (
		snap      snapshot
		userDocs  []userDoc
		recDocs   []recordDoc
		tokenDocs []resetTokenDoc
	)
	if err := readDocument(ctx, blobs, UsersDocument, &userDocs); err != nil {
		return nil, err
	}
	if err := readDocument(ctx, blobs, RecordsDocument, &recDocs); err != nil {
		return nil, err
	}
	if err := readDocument(ctx, blobs, ResetTokensDocument, &tokenDocs); err != nil {
		return nil, err
	}

	for _, d := range userDocs {
		snap.users = append(snap.users, models.User{
			ID:           d.ID,
			Username:     d.Username,
			Email:        d.Email,
			Name:         d.Name,
			PasswordHash: d.Password,
			CreatedAt:    d.CreatedAt,
			LastLogin:    d.LastLogin,
		})
	}
	for _, d := range recDocs {
		date, err := models.ParseDate(d.Date)
		if err != nil {
			return nil, fmt.Errorf("%s: record %d: %w", RecordsDocument, d.ID, err)
		}
		snap.records = append(snap.records, models.Record{
			ID:        d.ID,
			UserID:    d.UserID,
			Type:      models.RecordType(d.Type),
			Amount:    d.Amount,
			Category:  d.Category,
			Date:      date,
			Note:      d.Note,
			CreatedAt: d.CreatedAt,
		})
	}
	for _, d := range tokenDocs {
		snap.tokens = append(snap.tokens, models.ResetToken{
			ID:        d.ID,
			UserID:    d.UserID,
			Token:     d.Token,
			CreatedAt: d.CreatedAt,
			ExpiresAt: d.ExpiresAt,
		})
	}
	return &snap, nil
}

// readDocument leaves dst untouched when the document does not exist yet.
func readDocument(ctx context.Context, blobs BlobStore, name string, dst interface{}) error {
	data, err := blobs.Get(ctx, name)
	if errors.Is(err, ErrBlobNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

func writeDocument(ctx context.Context, blobs BlobStore, name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if err := blobs.Put(ctx, name, data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func (s *MemoryStore) saveUsers(ctx context.Context, users []models.User) error {
	if s.blobs == nil {
		return nil
	}
	docs := make([]userDoc, 0, len(users))
	for _, u := range users {
		docs = append(docs, userDoc{
			ID:        u.ID,
			Username:  u.Username,
			Email:     u.Email,
			Name:      u.Name,
			Password:  u.PasswordHash,
			CreatedAt: u.CreatedAt,
			LastLogin: u.LastLogin,
		})
	}
	return writeDocument(ctx, s.blobs, UsersDocument, docs)
}

func (s *MemoryStore) saveRecords(ctx context.Context, records []models.Record) error {
	if s.blobs == nil {
		return nil
	}
	docs := make([]recordDoc, 0, len(records))
	for _, r := range records {
		docs = append(docs, recordDoc{
			ID:        r.ID,
			UserID:    r.UserID,
			Type:      string(r.Type),
			Amount:    r.Amount,
			Category:  r.Category,
			Date:      r.Date.String(),
			Note:      r.Note,
			CreatedAt: r.CreatedAt,
		})
	}
	return writeDocument(ctx, s.blobs, RecordsDocument, docs)
}

func (s *MemoryStore) saveTokens(ctx context.Context, tokens []models.ResetToken) error {
	if s.blobs == nil {
		return nil
	}
	docs := make([]resetTokenDoc, 0, len(tokens))
	for _, t := range tokens {
		docs = append(docs, resetTokenDoc{
			ID:        t.ID,
			UserID:    t.UserID,
			Token:     t.Token,
			CreatedAt: t.CreatedAt,
			ExpiresAt: t.ExpiresAt,
		})
	}
	return writeDocument(ctx, s.blobs, ResetTokensDocument, docs)
}

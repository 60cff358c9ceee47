package repository

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ZhengyiNLP/sister-expense-tracker/models"
)

// MemoryStore keeps users, records and reset tokens in process memory.
// When a BlobStore is attached, every mutation rewrites the affected
// collection as a JSON document before it becomes visible.
type MemoryStore struct {
	mu      sync.RWMutex
	users   []models.User
	records []models.Record
	tokens  []models.ResetToken

	nextUserID   int
	nextRecordID int
	nextTokenID  int

	blobs BlobStore
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextUserID: 1, nextRecordID: 1, nextTokenID: 1}
}

// OpenSnapshotStore loads the three collections from blobs and keeps
// writing them back after each mutation.
func OpenSnapshotStore(ctx context.Context, blobs BlobStore) (*MemoryStore, error) {
	const op = "repository.OpenSnapshotStore"

	s := NewMemoryStore()
	s.blobs = blobs

	snap, err := loadSnapshot(ctx, blobs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.users, s.records, s.tokens = snap.users, snap.records, snap.tokens

	for _, u := range s.users {
		s.nextUserID = max(s.nextUserID, u.ID+1)
	}
	for _, r := range s.records {
		s.nextRecordID = max(s.nextRecordID, r.ID+1)
	}
	for _, t := range s.tokens {
		s.nextTokenID = max(s.nextTokenID, t.ID+1)
	}
	return s, nil
}

// Repositories exposes the store through the repository interfaces.
func (s *MemoryStore) Repositories() *Repositories {
	return &Repositories{Users: s, Records: s, ResetTokens: s}
}

func (s *MemoryStore) CreateUser(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// usernames and emails share one login namespace
	for i := range s.users {
		existing := &s.users[i]
		if existing.Username == u.Username || existing.Email == u.Email ||
			existing.Username == u.Email || existing.Email == u.Username {
			return ErrConflict
		}
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	stored := *u
	stored.ID = s.nextUserID

	next := append(s.users[:len(s.users):len(s.users)], stored)
	if err := s.saveUsers(ctx, next); err != nil {
		return err
	}
	s.users = next
	s.nextUserID++
	u.ID = stored.ID
	return nil
}

func (s *MemoryStore) GetUserByID(_ context.Context, id int) (*models.User, error) {
	return s.findUser(func(u *models.User) bool { return u.ID == id }), nil
}

func (s *MemoryStore) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	return s.findUser(func(u *models.User) bool { return u.Username == username }), nil
}

func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	return s.findUser(func(u *models.User) bool { return u.Email == email }), nil
}

func (s *MemoryStore) findUser(match func(*models.User) bool) *models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.users {
		if match(&s.users[i]) {
			u := s.users[i]
			return &u
		}
	}
	return nil
}

func (s *MemoryStore) UpdatePassword(ctx context.Context, id int, passwordHash string) error {
	return s.updateUser(ctx, id, func(u *models.User) { u.PasswordHash = passwordHash })
}

func (s *MemoryStore) TouchLastLogin(ctx context.Context, id int, at time.Time) error {
	return s.updateUser(ctx, id, func(u *models.User) { u.LastLogin = &at })
}

func (s *MemoryStore) updateUser(ctx context.Context, id int, mutate func(*models.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := slices.IndexFunc(s.users, func(u models.User) bool { return u.ID == id })
	if idx < 0 {
		return ErrNotFound
	}
	next := slices.Clone(s.users)
	mutate(&next[idx])
	if err := s.saveUsers(ctx, next); err != nil {
		return err
	}
	s.users = next
	return nil
}

func (s *MemoryStore) CountUsers(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users), nil
}

func (s *MemoryStore) CreateRecord(ctx context.Context, r *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !slices.ContainsFunc(s.users, func(u models.User) bool { return u.ID == r.UserID }) {
		return ErrUnknownOwner
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	stored := *r
	stored.ID = s.nextRecordID

	next := append(s.records[:len(s.records):len(s.records)], stored)
	if err := s.saveRecords(ctx, next); err != nil {
		return err
	}
	s.records = next
	s.nextRecordID++
	r.ID = stored.ID
	return nil
}

func (s *MemoryStore) ListRecords(_ context.Context, userID int) ([]models.Record, error) {
	s.mu.RLock()
	out := make([]models.Record, 0)
	for _, r := range s.records {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, compareRecords)
	return out, nil
}

// compareRecords orders newest first: date, then created_at, then id.
func compareRecords(a, b models.Record) int {
	if c := b.Date.Compare(a.Date.Time); c != 0 {
		return c
	}
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(b.ID, a.ID)
}

func (s *MemoryStore) DeleteRecord(ctx context.Context, userID, id int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := slices.IndexFunc(s.records, func(r models.Record) bool {
		return r.ID == id && r.UserID == userID
	})
	if idx < 0 {
		return false, nil
	}
	next := slices.Delete(slices.Clone(s.records), idx, idx+1)
	if err := s.saveRecords(ctx, next); err != nil {
		return false, err
	}
	s.records = next
	return true, nil
}

func (s *MemoryStore) DeleteAllRecords(ctx context.Context, userID int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]models.Record, 0, len(s.records))
	for _, r := range s.records {
		if r.UserID != userID {
			next = append(next, r)
		}
	}
	deleted := int64(len(s.records) - len(next))
	if deleted == 0 {
		return 0, nil
	}
	if err := s.saveRecords(ctx, next); err != nil {
		return 0, err
	}
	s.records = next
	return deleted, nil
}

func (s *MemoryStore) CreateResetToken(ctx context.Context, t *models.ResetToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if slices.ContainsFunc(s.tokens, func(rt models.ResetToken) bool { return rt.Token == t.Token }) {
		return ErrConflict
	}
	stored := *t
	stored.ID = s.nextTokenID

	next := append(s.tokens[:len(s.tokens):len(s.tokens)], stored)
	if err := s.saveTokens(ctx, next); err != nil {
		return err
	}
	s.tokens = next
	s.nextTokenID++
	t.ID = stored.ID
	return nil
}

func (s *MemoryStore) GetResetToken(_ context.Context, token string) (*models.ResetToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rt := range s.tokens {
		if rt.Token == token {
			return &rt, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) DeleteResetToken(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := slices.IndexFunc(s.tokens, func(rt models.ResetToken) bool { return rt.Token == token })
	if idx < 0 {
		return nil
	}
	next := slices.Delete(slices.Clone(s.tokens), idx, idx+1)
	if err := s.saveTokens(ctx, next); err != nil {
		return err
	}
	s.tokens = next
	return nil
}

func (s *MemoryStore) TakeResetToken(ctx context.Context, token string) (*models.ResetToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := slices.IndexFunc(s.tokens, func(rt models.ResetToken) bool { return rt.Token == token })
	if idx < 0 {
		return nil, nil
	}
	taken := s.tokens[idx]
	next := slices.Delete(slices.Clone(s.tokens), idx, idx+1)
	if err := s.saveTokens(ctx, next); err != nil {
		return nil, err
	}
	s.tokens = next
	return &taken, nil
}

func (s *MemoryStore) PurgeExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]models.ResetToken, 0, len(s.tokens))
	for _, rt := range s.tokens {
		if !rt.Expired(now) {
			next = append(next, rt)
		}
	}
	purged := int64(len(s.tokens) - len(next))
	if purged == 0 {
		return 0, nil
	}
	if err := s.saveTokens(ctx, next); err != nil {
		return 0, err
	}
	s.tokens = next
	return purged, nil
}

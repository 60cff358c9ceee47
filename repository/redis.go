package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ZhengyiNLP/sister-expense-tracker/models"

	"github.com/go-redis/redis/v8"
)

const defaultResetKeyPrefix = "reset:"

// RedisResetTokenRepository stores reset tokens as JSON values whose TTL
// matches their expiry, so expired tokens disappear without a purge.
type RedisResetTokenRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisResetTokenRepository(client *redis.Client, prefix string) *RedisResetTokenRepository {
	if prefix == "" {
		prefix = defaultResetKeyPrefix
	}
	return &RedisResetTokenRepository{client: client, prefix: prefix}
}

func (r *RedisResetTokenRepository) key(token string) string {
	return r.prefix + "token:" + token
}

func (r *RedisResetTokenRepository) CreateResetToken(ctx context.Context, t *models.ResetToken) error {
	const op = "repository.redis.CreateResetToken"

	ttl := t.ExpiresAt.Sub(t.CreatedAt)
	if ttl <= 0 {
		return fmt.Errorf("%s: expiry must follow creation", op)
	}
	id, err := r.client.Incr(ctx, r.prefix+"seq").Result()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	stored := *t
	stored.ID = int(id)

	data, err := json.Marshal(resetTokenDoc{
		ID:        stored.ID,
		UserID:    stored.UserID,
		Token:     stored.Token,
		CreatedAt: stored.CreatedAt,
		ExpiresAt: stored.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	ok, err := r.client.SetNX(ctx, r.key(t.Token), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return ErrConflict
	}
	t.ID = stored.ID
	return nil
}

func (r *RedisResetTokenRepository) GetResetToken(ctx context.Context, token string) (*models.ResetToken, error) {
	const op = "repository.redis.GetResetToken"

	rt, err := decodeResetToken(r.client.Get(ctx, r.key(token)).Bytes())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return rt, nil
}

// TakeResetToken relies on GETDEL, so it needs Redis 6.2 or later.
func (r *RedisResetTokenRepository) TakeResetToken(ctx context.Context, token string) (*models.ResetToken, error) {
	const op = "repository.redis.TakeResetToken"

	rt, err := decodeResetToken(r.client.GetDel(ctx, r.key(token)).Bytes())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return rt, nil
}

func decodeResetToken(data []byte, err error) (*models.ResetToken, error) {
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var doc resetTokenDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &models.ResetToken{
		ID:        doc.ID,
		UserID:    doc.UserID,
		Token:     doc.Token,
		CreatedAt: doc.CreatedAt,
		ExpiresAt: doc.ExpiresAt,
	}, nil
}

func (r *RedisResetTokenRepository) DeleteResetToken(ctx context.Context, token string) error {
	if err := r.client.Del(ctx, r.key(token)).Err(); err != nil {
		return fmt.Errorf("repository.redis.DeleteResetToken: %w", err)
	}
	return nil
}

// PurgeExpiredResetTokens is a no-op; keys expire on their own.
func (r *RedisResetTokenRepository) PurgeExpiredResetTokens(context.Context, time.Time) (int64, error) {
	return 0, nil
}

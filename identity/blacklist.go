package identity

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"inkpress/models"
)

// Blacklist remembers revoked token ids until the token would have
// expired anyway. Revoke reports false when jti was already revoked, so
// exactly one caller wins a race to consume a token.
type Blacklist interface {
	Revoke(ctx context.Context, jti string, expiresAt time.Time) (bool, error)
	Revoked(ctx context.Context, jti string) (bool, error)
}

// DBBlacklist keeps revoked ids in the blacklisted_tokens table.
type DBBlacklist struct {
	db  *gorm.DB
	now func() time.Time
}

func NewDBBlacklist(db *gorm.DB) *DBBlacklist {
	return &DBBlacklist{db: db, now: time.Now}
}

func (b *DBBlacklist) Revoke(ctx context.Context, jti string, expiresAt time.Time) (bool, error) {
	res := b.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.BlacklistedToken{JTI: jti, ExpiresAt: expiresAt})
	return res.RowsAffected == 1, res.Error
}

func (b *DBBlacklist) Revoked(ctx context.Context, jti string) (bool, error) {
	var n int64
	err := b.db.WithContext(ctx).Model(&models.BlacklistedToken{}).Where("jti = ?", jti).Count(&n).Error
	return n > 0, err
}

// Prune drops rows for tokens that have expired on their own.
func (b *DBBlacklist) Prune(ctx context.Context) (int64, error) {
	res := b.db.WithContext(ctx).Where("expires_at < ?", b.now()).Delete(&models.BlacklistedToken{})
	return res.RowsAffected, res.Error
}

// RedisBlacklist stores one key per revoked id with a matching TTL.
type RedisBlacklist struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisBlacklist(client *redis.Client) *RedisBlacklist {
	return &RedisBlacklist{client: client, prefix: "inkpress:blacklist:", now: time.Now}
}

func (b *RedisBlacklist) Revoke(ctx context.Context, jti string, expiresAt time.Time) (bool, error) {
	ttl := expiresAt.Sub(b.now())
	if ttl <= 0 {
		ttl = time.Second
	}
	return b.client.SetNX(ctx, b.prefix+jti, 1, ttl).Result()
}

func (b *RedisBlacklist) Revoked(ctx context.Context, jti string) (bool, error) {
	err := b.client.Get(ctx, b.prefix+jti).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

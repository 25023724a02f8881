package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/go-faster/errors"
	"github.com/tgdrive/filebot/internal/cache"
	"github.com/tgdrive/filebot/internal/database"
	"github.com/tgdrive/filebot/pkg/models"
	"gorm.io/gorm"
)

const (
	tokenBytes        = 12
	maxCreateAttempts = 5
)

// GenerateToken returns a URL-safe token carrying 12 random bytes.
func GenerateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

type TokenStore struct {
	db        *gorm.DB
	cache     cache.Cacher
	ttl       time.Duration
	newToken  func() (string, error)
	timeNowFn func() time.Time
}

func NewTokenStore(db *gorm.DB, c cache.Cacher, ttl time.Duration) *TokenStore {
	return &TokenStore{
		db:        db,
		cache:     c,
		ttl:       ttl,
		newToken:  GenerateToken,
		timeNowFn: time.Now,
	}
}

func validateRecord(r *models.Token) error {
	switch r.SendMethod {
	case models.SendCopy:
		if r.FromChatID == nil || r.FromMessageID == nil || r.FileID != nil {
			return ErrInvalidRecord
		}
	case models.SendFile:
		if r.FileID == nil || *r.FileID == "" || r.FromChatID != nil || r.FromMessageID != nil {
			return ErrInvalidRecord
		}
	default:
		return ErrInvalidRecord
	}
	return nil
}

// Create assigns a fresh token to r and stores it, regenerating the token
// when it collides with an existing one.
func (s *TokenStore) Create(ctx context.Context, r *models.Token) (string, error) {
	if err := validateRecord(r); err != nil {
		return "", err
	}
	if r.AddedAt.IsZero() {
		r.AddedAt = s.timeNowFn().UTC()
	}
	r.ID = 0
	r.UsedCount = 0

	for range maxCreateAttempts {
		token, err := s.newToken()
		if err != nil {
			return "", errors.Wrap(err, "generate token")
		}
		r.Token = token
		err = s.db.WithContext(ctx).Create(r).Error
		if err == nil {
			return token, nil
		}
		if !database.IsKeyConflictErr(err) {
			return "", errors.Wrap(err, "create token")
		}
		r.ID = 0
	}
	return "", ErrTokenCollision
}

func (s *TokenStore) Lookup(ctx context.Context, token string) (*models.Token, error) {
	load := func() (*models.Token, error) {
		var rec models.Token
		if err := s.db.WithContext(ctx).Where("token = ?", token).First(&rec).Error; err != nil {
			if database.IsRecordNotFoundErr(err) {
				return nil, ErrTokenNotFound
			}
			return nil, errors.Wrap(err, "lookup token")
		}
		return &rec, nil
	}
	if s.cache == nil {
		return load()
	}
	return cache.Fetch(ctx, s.cache, cache.KeyToken(token), s.ttl, load)
}

// IncrementUse counts one redemption. The update only applies while quota
// remains, so the counter never passes uses_allowed.
func (s *TokenStore) IncrementUse(ctx context.Context, rec *models.Token) error {
	res := s.db.WithContext(ctx).Model(&models.Token{}).
		Where("id = ? AND (uses_allowed = ? OR used_count < uses_allowed)", rec.ID, models.UnlimitedUses).
		UpdateColumn("used_count", gorm.Expr("used_count + 1"))
	s.invalidate(ctx, rec.Token)
	if res.Error != nil {
		return errors.Wrap(res.Error, "increment use")
	}
	if res.RowsAffected == 0 {
		return ErrQuotaExhausted
	}
	return nil
}

func (s *TokenStore) Delete(ctx context.Context, token string) error {
	err := s.db.WithContext(ctx).Where("token = ?", token).Delete(&models.Token{}).Error
	s.invalidate(ctx, token)
	if err != nil {
		return errors.Wrap(err, "delete token")
	}
	return nil
}

func (s *TokenStore) ListAll(ctx context.Context) ([]models.Token, error) {
	var recs []models.Token
	if err := s.db.WithContext(ctx).Order("id").Find(&recs).Error; err != nil {
		return nil, errors.Wrap(err, "list tokens")
	}
	return recs, nil
}

func (s *TokenStore) invalidate(ctx context.Context, token string) {
	if s.cache != nil {
		_ = s.cache.Delete(ctx, cache.KeyToken(token))
	}
}

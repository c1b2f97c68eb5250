// Package settings implements the typed, scoped settings subsystem: value
// coercion, the settings store, and the service with its cached default
// system prompt.
package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/locallm/internal/apperr"
	"github.com/zulandar/locallm/internal/db"
	"github.com/zulandar/locallm/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is scoped CRUD over setting rows. Every call runs through the
// configured retry policy.
type Store struct {
	db    *gorm.DB
	retry *db.RetryPolicy
	now   func() time.Time
}

// StoreOpts holds parameters for creating a Store.
type StoreOpts struct {
	DB    *gorm.DB
	Retry *db.RetryPolicy  // defaults to db.DefaultRetryPolicy()
	Clock func() time.Time // defaults to time.Now; results are stored as UTC
}

// NewStore creates a Store.
func NewStore(opts StoreOpts) (*Store, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("settings: store: db is required")
	}
	retry := opts.Retry
	if retry == nil {
		retry = db.DefaultRetryPolicy()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Store{db: opts.DB, retry: retry, now: clock}, nil
}

// keyColumn is quoted by the dialect; "key" is reserved in MySQL.
var keyColumn = clause.Column{Name: "key"}

func (s *Store) timestamp() time.Time {
	return naiveUTC(s.now())
}

// scopeWhere narrows q to one (key, scope, scope_id) tuple. A nil scopeID
// matches only rows whose scope_id is NULL.
func scopeWhere(q *gorm.DB, key models.SettingKey, scope models.Scope, scopeID *int64) *gorm.DB {
	q = q.Where(clause.Eq{Column: keyColumn, Value: key}).Where("scope = ?", scope)
	if scopeID == nil {
		return q.Where("scope_id IS NULL")
	}
	return q.Where("scope_id = ?", *scopeID)
}

func notFound(key models.SettingKey, scope models.Scope, scopeID *int64) error {
	ref := "none"
	if scopeID != nil {
		ref = models.ScopeRef(scopeID)
	}
	return fmt.Errorf("settings: %w: %s (scope %s, scope_id %s)", apperr.ErrNotFound, key, scope, ref)
}

// Get returns the setting for the exact tuple, or an error wrapping
// apperr.ErrNotFound.
func (s *Store) Get(ctx context.Context, key models.SettingKey, scope models.Scope, scopeID *int64) (*models.Setting, error) {
	var setting models.Setting
	err := s.retry.Do(ctx, func() error {
		return scopeWhere(s.db.WithContext(ctx), key, scope, scopeID).First(&setting).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound(key, scope, scopeID)
	}
	if err != nil {
		return nil, fmt.Errorf("settings: get %s: %w", key, err)
	}
	return &setting, nil
}

// ListByScope returns every setting in scope, narrowed to scopeID when it
// is non-nil. Rows come back ordered by key then id.
func (s *Store) ListByScope(ctx context.Context, scope models.Scope, scopeID *int64) ([]models.Setting, error) {
	var out []models.Setting
	err := s.retry.Do(ctx, func() error {
		out = out[:0]
		q := s.db.WithContext(ctx).Where("scope = ?", scope)
		if scopeID != nil {
			q = q.Where("scope_id = ?", *scopeID)
		}
		return q.Order(clause.OrderByColumn{Column: keyColumn}).Order("id").Find(&out).Error
	})
	if err != nil {
		return nil, fmt.Errorf("settings: list %s: %w", scope, err)
	}
	return out, nil
}

// Create inserts setting. A row with the same tuple already present yields
// an error wrapping apperr.ErrConflict.
func (s *Store) Create(ctx context.Context, setting *models.Setting) error {
	now := s.timestamp()
	setting.ID = 0
	setting.CreatedAt = now
	setting.UpdatedAt = now
	err := s.retry.Do(ctx, func() error {
		return s.db.WithContext(ctx).Create(setting).Error
	})
	if errors.Is(err, apperr.ErrConflict) {
		return fmt.Errorf("settings: create %s: %s already exists in scope %s: %w",
			setting.Key, setting.Key, setting.Scope, err)
	}
	if err != nil {
		return fmt.Errorf("settings: create %s: %w", setting.Key, err)
	}
	return nil
}

// Upsert inserts setting or, when the tuple exists, overwrites its value,
// value type, and updated_at. Description and metadata are overwritten only
// when supplied. The persisted row is returned.
func (s *Store) Upsert(ctx context.Context, setting *models.Setting) (*models.Setting, error) {
	now := s.timestamp()
	setting.ID = 0
	setting.CreatedAt = now
	setting.UpdatedAt = now

	updates := []string{"value", "value_type", "updated_at"}
	if setting.Description != "" {
		updates = append(updates, "description")
	}
	if setting.Metadata != nil {
		updates = append(updates, "metadata")
	}

	var saved models.Setting
	err := s.retry.Do(ctx, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			row := *setting
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "scope"}, {Name: "scope_ref"}, {Name: "key"}},
				DoUpdates: clause.AssignmentColumns(updates),
			}).Create(&row).Error
			if err != nil {
				return err
			}
			return scopeWhere(tx, setting.Key, setting.Scope, setting.ScopeID).First(&saved).Error
		})
	})
	if err != nil {
		return nil, fmt.Errorf("settings: upsert %s: %w", setting.Key, err)
	}
	return &saved, nil
}

// Delete removes the tuple if present. Deleting an absent tuple is not an
// error.
func (s *Store) Delete(ctx context.Context, key models.SettingKey, scope models.Scope, scopeID *int64) error {
	err := s.retry.Do(ctx, func() error {
		return scopeWhere(s.db.WithContext(ctx), key, scope, scopeID).Delete(&models.Setting{}).Error
	})
	if err != nil {
		return fmt.Errorf("settings: delete %s: %w", key, err)
	}
	return nil
}

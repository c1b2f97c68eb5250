// Package conversation persists conversations and their messages and
// assembles the prompt context for a generation turn.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zulandar/locallm/internal/apperr"
	"github.com/zulandar/locallm/internal/db"
	"github.com/zulandar/locallm/internal/models"
	"gorm.io/gorm"
)

// Default values for listing.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// Store persists Conversation rows.
type Store struct {
	db    *gorm.DB
	retry *db.RetryPolicy
	now   func() time.Time
}

// StoreOpts holds parameters for creating a Store or MessageStore.
type StoreOpts struct {
	DB    *gorm.DB
	Retry *db.RetryPolicy  // defaults to db.DefaultRetryPolicy()
	Clock func() time.Time // defaults to time.Now
}

func (o StoreOpts) resolve(name string) (StoreOpts, error) {
	if o.DB == nil {
		return o, fmt.Errorf("conversation: %s: db is required", name)
	}
	if o.Retry == nil {
		o.Retry = db.DefaultRetryPolicy()
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o, nil
}

// NewStore creates a conversation Store.
func NewStore(opts StoreOpts) (*Store, error) {
	opts, err := opts.resolve("store")
	if err != nil {
		return nil, err
	}
	return &Store{db: opts.DB, retry: opts.Retry, now: opts.Clock}, nil
}

func utcNow(clock func() time.Time) time.Time {
	t := clock().UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

func conversationNotFound(id uint) error {
	return fmt.Errorf("conversation: %w: conversation %d", apperr.ErrNotFound, id)
}

func validationf(format string, args ...any) error {
	return fmt.Errorf("conversation: %w: %s", apperr.ErrValidation, fmt.Sprintf(format, args...))
}

// validateConversation enforces the row invariants: non-empty title and a
// model reference from the catalog.
func validateConversation(c *models.Conversation) error {
	if strings.TrimSpace(c.Title) == "" {
		return validationf("title must not be empty")
	}
	if c.ModelType == "" || c.ModelName == "" {
		return validationf("model_type and model_name are required")
	}
	if !models.SupportedModel(c.ModelType, c.ModelName) {
		return validationf("unsupported %s model %q", c.ModelType, c.ModelName)
	}
	return nil
}

// Create validates and inserts c, setting its id and timestamps.
func (s *Store) Create(ctx context.Context, c *models.Conversation) error {
	if err := validateConversation(c); err != nil {
		return err
	}
	now := utcNow(s.now)
	c.ID = 0
	c.CreatedAt = now
	c.UpdatedAt = now
	err := s.retry.Do(ctx, func() error {
		return s.db.WithContext(ctx).Create(c).Error
	})
	if err != nil {
		return fmt.Errorf("conversation: create: %w", err)
	}
	return nil
}

// Get returns the conversation with id, or an error wrapping
// apperr.ErrNotFound.
func (s *Store) Get(ctx context.Context, id uint) (*models.Conversation, error) {
	var c models.Conversation
	err := s.retry.Do(ctx, func() error {
		return s.db.WithContext(ctx).First(&c, id).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, conversationNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("conversation: get %d: %w", id, err)
	}
	return &c, nil
}

// ListOpts controls List ordering and paging.
type ListOpts struct {
	OrderBy   string // created_at (default), updated_at, id, title
	Direction string // desc (default), asc
	Limit     int    // defaults to DefaultListLimit, capped at MaxListLimit
	Offset    int
}

var listColumns = map[string]bool{"created_at": true, "updated_at": true, "id": true, "title": true}

// List returns conversations in the requested order.
func (s *Store) List(ctx context.Context, opts ListOpts) ([]models.Conversation, error) {
	orderBy := opts.OrderBy
	if orderBy == "" {
		orderBy = "created_at"
	}
	if !listColumns[orderBy] {
		return nil, validationf("cannot order by %q", orderBy)
	}
	dir := strings.ToLower(opts.Direction)
	if dir == "" {
		dir = "desc"
	}
	if dir != "asc" && dir != "desc" {
		return nil, validationf("direction must be asc or desc, got %q", opts.Direction)
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if opts.Offset < 0 {
		return nil, validationf("offset must not be negative")
	}

	var out []models.Conversation
	err := s.retry.Do(ctx, func() error {
		out = out[:0]
		return s.db.WithContext(ctx).
			Order(orderBy + " " + dir).Order("id " + dir).
			Limit(limit).Offset(opts.Offset).
			Find(&out).Error
	})
	if err != nil {
		return nil, fmt.Errorf("conversation: list: %w", err)
	}
	return out, nil
}

// Update carries the editable fields; nil leaves a field unchanged.
type Update struct {
	Title        *string
	SystemPrompt *string
}

// Update applies u to the conversation and returns the saved row.
func (s *Store) Update(ctx context.Context, id uint, u Update) (*models.Conversation, error) {
	changes := map[string]interface{}{"updated_at": utcNow(s.now)}
	if u.Title != nil {
		title := strings.TrimSpace(*u.Title)
		if title == "" {
			return nil, validationf("title must not be empty")
		}
		changes["title"] = title
	}
	if u.SystemPrompt != nil {
		changes["system_prompt"] = *u.SystemPrompt
	}

	var c models.Conversation
	err := s.retry.Do(ctx, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			res := tx.Model(&models.Conversation{}).Where("id = ?", id).Updates(changes)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return gorm.ErrRecordNotFound
			}
			return tx.First(&c, id).Error
		})
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, conversationNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("conversation: update %d: %w", id, err)
	}
	return &c, nil
}

// Delete removes the conversation and all of its messages in one
// transaction: messages first, then the conversation row.
func (s *Store) Delete(ctx context.Context, id uint) error {
	err := s.retry.Do(ctx, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("conversation_id = ?", id).Delete(&models.Message{}).Error; err != nil {
				return err
			}
			res := tx.Delete(&models.Conversation{}, id)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return gorm.ErrRecordNotFound
			}
			return nil
		})
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return conversationNotFound(id)
	}
	if err != nil {
		return fmt.Errorf("conversation: delete %d: %w", id, err)
	}
	return nil
}

// DeleteOlderThan removes every conversation last updated before cutoff,
// with its messages. It returns the number of conversations removed.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	err := s.retry.Do(ctx, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var ids []uint
			if err := tx.Model(&models.Conversation{}).
				Where("updated_at < ?", cutoff.UTC()).
				Pluck("id", &ids).Error; err != nil {
				return err
			}
			if len(ids) == 0 {
				removed = 0
				return nil
			}
			if err := tx.Where("conversation_id IN ?", ids).Delete(&models.Message{}).Error; err != nil {
				return err
			}
			res := tx.Where("id IN ?", ids).Delete(&models.Conversation{})
			removed = res.RowsAffected
			return res.Error
		})
	})
	if err != nil {
		return 0, fmt.Errorf("conversation: delete older than %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return removed, nil
}

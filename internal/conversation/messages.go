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

// MessageStore persists Message rows. Messages are append-only.
type MessageStore struct {
	db    *gorm.DB
	retry *db.RetryPolicy
	now   func() time.Time
}

// NewMessageStore creates a MessageStore.
func NewMessageStore(opts StoreOpts) (*MessageStore, error) {
	opts, err := opts.resolve("message store")
	if err != nil {
		return nil, err
	}
	return &MessageStore{db: opts.DB, retry: opts.Retry, now: opts.Clock}, nil
}

func validateMessage(m *models.Message) error {
	if m.ConversationID == 0 {
		return validationf("conversation_id is required")
	}
	if !m.Role.Valid() {
		return validationf("role must be user or assistant, got %q", m.Role)
	}
	if strings.TrimSpace(m.Content) == "" {
		return validationf("content must not be empty")
	}
	return nil
}

// Create validates and appends m to its conversation, bumping the
// conversation's updated_at in the same transaction. A missing
// conversation yields apperr.ErrNotFound.
func (s *MessageStore) Create(ctx context.Context, m *models.Message) error {
	if err := validateMessage(m); err != nil {
		return err
	}
	now := utcNow(s.now)
	err := s.retry.Do(ctx, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			res := tx.Model(&models.Conversation{}).
				Where("id = ?", m.ConversationID).
				Update("updated_at", now)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return gorm.ErrRecordNotFound
			}
			m.ID = 0
			m.CreatedAt = now
			return tx.Create(m).Error
		})
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return conversationNotFound(m.ConversationID)
	}
	if err != nil {
		return fmt.Errorf("conversation: add %s message to %d: %w", m.Role, m.ConversationID, err)
	}
	return nil
}

// Get returns one message, or an error wrapping apperr.ErrNotFound.
func (s *MessageStore) Get(ctx context.Context, id uint) (*models.Message, error) {
	var m models.Message
	err := s.retry.Do(ctx, func() error {
		return s.db.WithContext(ctx).First(&m, id).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("conversation: %w: message %d", apperr.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("conversation: get message %d: %w", id, err)
	}
	return &m, nil
}

// HistoryOpts bounds a history fetch.
type HistoryOpts struct {
	// BeforeID excludes messages with id >= BeforeID. Zero means no bound.
	BeforeID uint
	// Limit keeps only the most recent Limit messages. Zero means all.
	Limit int
}

// ListByConversation returns a conversation's messages in ascending id
// order, bounded by opts.
func (s *MessageStore) ListByConversation(ctx context.Context, conversationID uint, opts HistoryOpts) ([]models.Message, error) {
	if opts.Limit < 0 {
		return nil, validationf("limit must not be negative")
	}
	var out []models.Message
	err := s.retry.Do(ctx, func() error {
		out = out[:0]
		q := s.db.WithContext(ctx).Where("conversation_id = ?", conversationID)
		if opts.BeforeID > 0 {
			q = q.Where("id < ?", opts.BeforeID)
		}
		if opts.Limit > 0 {
			return q.Order("id DESC").Limit(opts.Limit).Find(&out).Error
		}
		return q.Order("id ASC").Find(&out).Error
	})
	if err != nil {
		return nil, fmt.Errorf("conversation: list messages of %d: %w", conversationID, err)
	}
	if opts.Limit > 0 {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

// Count returns how many messages a conversation holds.
func (s *MessageStore) Count(ctx context.Context, conversationID uint) (int64, error) {
	var n int64
	err := s.retry.Do(ctx, func() error {
		return s.db.WithContext(ctx).Model(&models.Message{}).
			Where("conversation_id = ?", conversationID).Count(&n).Error
	})
	if err != nil {
		return 0, fmt.Errorf("conversation: count messages of %d: %w", conversationID, err)
	}
	return n, nil
}

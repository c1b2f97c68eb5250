package models

import (
	"time"

	"gorm.io/datatypes"
)

// Message is one turn half inside a conversation. Messages are never updated
// after insert.
type Message struct {
	ID             uint              `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID uint              `gorm:"not null;index" json:"conversation_id"`
	Role           Role              `gorm:"size:16;not null" json:"role"`
	Content        string            `gorm:"type:text;not null" json:"content"`
	GenerationInfo datatypes.JSONMap `json:"generation_info,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

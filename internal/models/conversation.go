package models

import "time"

// Conversation is a dialogue with one model. Its messages live in the
// messages table keyed by ConversationID and are removed explicitly when the
// conversation is deleted.
type Conversation struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Title        string    `gorm:"size:255;not null" json:"title"`
	ModelType    ModelType `gorm:"size:16;not null" json:"model_type"`
	ModelName    string    `gorm:"size:64;not null" json:"model_name"`
	SystemPrompt string    `gorm:"type:text" json:"system_prompt,omitempty"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time `gorm:"index" json:"updated_at"`
}

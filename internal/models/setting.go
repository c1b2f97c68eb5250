package models

import (
	"strconv"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Setting is one scoped key/value fact. Value always holds the canonical
// string form of a value of type ValueType.
type Setting struct {
	ID          uint              `gorm:"primaryKey;autoIncrement" json:"id"`
	Scope       Scope             `gorm:"size:16;not null;uniqueIndex:ux_settings_scope_key,priority:1;index" json:"scope"`
	ScopeRef    string            `gorm:"size:32;not null;default:'';uniqueIndex:ux_settings_scope_key,priority:2" json:"-"`
	Key         SettingKey        `gorm:"size:64;not null;uniqueIndex:ux_settings_scope_key,priority:3" json:"key"`
	ScopeID     *int64            `gorm:"index" json:"scope_id"`
	Value       string            `gorm:"type:text;not null" json:"value"`
	ValueType   ValueType         `gorm:"size:16;not null" json:"value_type"`
	Description string            `gorm:"size:512" json:"description,omitempty"`
	Metadata    datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// BeforeSave keeps ScopeRef in step with ScopeID. The unique index covers
// ScopeRef rather than the nullable ScopeID so that two unscoped rows with
// the same scope and key still collide.
func (s *Setting) BeforeSave(tx *gorm.DB) error {
	s.ScopeRef = ScopeRef(s.ScopeID)
	return nil
}

// ScopeRef renders a scope id as the non-null column value used for
// uniqueness: "" for no id, the decimal id otherwise.
func ScopeRef(scopeID *int64) string {
	if scopeID == nil {
		return ""
	}
	return strconv.FormatInt(*scopeID, 10)
}

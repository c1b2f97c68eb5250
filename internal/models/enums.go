package models

// SettingKey names a recognized setting.
type SettingKey string

const (
	KeyModelName         SettingKey = "model_name"
	KeyMaxLength         SettingKey = "max_length"
	KeyTemperature       SettingKey = "temperature"
	KeyTopP              SettingKey = "top_p"
	KeyTopK              SettingKey = "top_k"
	KeyRepetitionPenalty SettingKey = "repetition_penalty"
	KeyAPIKey            SettingKey = "api_key"
	KeyRateLimit         SettingKey = "rate_limit"
	KeySystemPrompt      SettingKey = "system_prompt"
)

// SettingKeys lists every recognized key.
var SettingKeys = []SettingKey{
	KeyModelName,
	KeyMaxLength,
	KeyTemperature,
	KeyTopP,
	KeyTopK,
	KeyRepetitionPenalty,
	KeyAPIKey,
	KeyRateLimit,
	KeySystemPrompt,
}

// Valid reports whether k is a recognized key.
func (k SettingKey) Valid() bool {
	for _, v := range SettingKeys {
		if k == v {
			return true
		}
	}
	return false
}

// Scope is the namespace a setting applies to.
type Scope string

const (
	ScopeGlobal Scope = "global"
	ScopeChat   Scope = "chat"
	ScopeAPI    Scope = "api"
)

// Valid reports whether s is a recognized scope.
func (s Scope) Valid() bool {
	switch s {
	case ScopeGlobal, ScopeChat, ScopeAPI:
		return true
	}
	return false
}

// ValueType tags how a setting's stored string is parsed and serialized.
type ValueType string

const (
	TypeString   ValueType = "string"
	TypeInteger  ValueType = "integer"
	TypeFloat    ValueType = "float"
	TypeBoolean  ValueType = "boolean"
	TypeJSON     ValueType = "json"
	TypeArray    ValueType = "array"
	TypeDatetime ValueType = "datetime"
	TypeDate     ValueType = "date"
	TypeTime     ValueType = "time"
	TypeURL      ValueType = "url"
	TypeUUID     ValueType = "uuid"
	TypeEnum     ValueType = "enum"
	TypeObject   ValueType = "object"
)

// ValueTypes lists every value type tag.
var ValueTypes = []ValueType{
	TypeString, TypeInteger, TypeFloat, TypeBoolean, TypeJSON, TypeArray,
	TypeDatetime, TypeDate, TypeTime, TypeURL, TypeUUID, TypeEnum, TypeObject,
}

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is user or assistant.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// ModelType distinguishes text from image models.
type ModelType string

const (
	ModelTypeText  ModelType = "text"
	ModelTypeImage ModelType = "image"
)

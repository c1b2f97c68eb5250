package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zulandar/locallm/internal/apperr"
	"github.com/zulandar/locallm/internal/config"
	"github.com/zulandar/locallm/internal/logger"
	"github.com/zulandar/locallm/internal/models"
	"gorm.io/datatypes"
)

// SettingData is the caller-supplied part of a write.
type SettingData struct {
	Value       any
	ValueType   models.ValueType // defaults to the key's required type, else string
	Description string
	Metadata    map[string]any
}

// CreateRequest names the tuple for a new setting along with its data.
type CreateRequest struct {
	Key     models.SettingKey
	Scope   models.Scope
	ScopeID *int64
	SettingData
}

// BatchEntry is one key of a batch update. Entries apply in slice order.
type BatchEntry struct {
	Key models.SettingKey
	SettingData
}

// View is a setting with its value reconstituted to its typed form.
type View struct {
	Key         models.SettingKey `json:"key"`
	Scope       models.Scope      `json:"scope"`
	ScopeID     *int64            `json:"scope_id"`
	Value       any               `json:"value"`
	ValueType   models.ValueType  `json:"value_type"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]any    `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Broadcaster tells other instances that a cached value changed.
type Broadcaster interface {
	Publish(ctx context.Context, ev Invalidation) error
}

// Service is the business facade over Store: validation, typed views,
// batch updates, and the cached default system prompt.
type Service struct {
	store       *Store
	cache       *PromptCache
	fallback    string
	broadcaster Broadcaster
	log         *logger.Logger
}

// ServiceOpts holds parameters for creating a Service.
type ServiceOpts struct {
	Store                *Store
	Logger               *logger.Logger // defaults to logger.Nop()
	FallbackSystemPrompt string         // defaults to config.DefaultSystemPrompt
	Broadcaster          Broadcaster    // optional
}

// NewService creates a Service.
func NewService(opts ServiceOpts) (*Service, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("settings: service: store is required")
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	fallback := opts.FallbackSystemPrompt
	if fallback == "" {
		fallback = config.DefaultSystemPrompt
	}
	return &Service{
		store:       opts.Store,
		cache:       &PromptCache{},
		fallback:    fallback,
		broadcaster: opts.Broadcaster,
		log:         log.With("service", "SettingsService"),
	}, nil
}

func validationf(format string, args ...any) error {
	return fmt.Errorf("settings: %w: %s", apperr.ErrValidation, fmt.Sprintf(format, args...))
}

// normalizeTuple trims the key and rejects anything outside the recognized
// key and scope sets. A scope_id is not allowed on global scope.
func normalizeTuple(key models.SettingKey, scope models.Scope, scopeID *int64) (models.SettingKey, error) {
	key = models.SettingKey(strings.TrimSpace(string(key)))
	if key == "" {
		return "", validationf("key is required")
	}
	if !key.Valid() {
		return "", validationf("unknown setting key %q", key)
	}
	if !scope.Valid() {
		return "", validationf("unknown scope %q", scope)
	}
	if scope == models.ScopeGlobal && scopeID != nil {
		return "", validationf("scope_id must be empty for global scope (got %d)", *scopeID)
	}
	return key, nil
}

// buildRow validates data against its value type and the key's own rule,
// and returns the row to persist with Value in canonical string form.
func buildRow(key models.SettingKey, scope models.Scope, scopeID *int64, data SettingData) (*models.Setting, error) {
	vt := data.ValueType
	if vt == "" {
		vt = models.TypeString
		if want, ok := RequiredType(key); ok {
			vt = want
		}
	}
	v, err := ValidateAndConvert(data.Value, vt)
	if err != nil {
		return nil, fmt.Errorf("settings: %s: %w", key, err)
	}
	if err := checkKeyType(key, vt); err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}
	if _, err := CheckValue(key, v); err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}
	stored, err := Serialize(v, vt)
	if err != nil {
		return nil, fmt.Errorf("settings: %s: %w", key, err)
	}
	row := &models.Setting{
		Key:         key,
		Scope:       scope,
		ScopeID:     scopeID,
		Value:       stored,
		ValueType:   vt,
		Description: data.Description,
	}
	if data.Metadata != nil {
		row.Metadata = datatypes.JSONMap(data.Metadata)
	}
	return row, nil
}

// toView reconstitutes the typed value of a stored row.
func toView(s *models.Setting) (*View, error) {
	v, err := ValidateAndConvert(s.Value, s.ValueType)
	if err != nil {
		return nil, fmt.Errorf("settings: stored %s: %w", s.Key, err)
	}
	view := &View{
		Key:         s.Key,
		Scope:       s.Scope,
		ScopeID:     s.ScopeID,
		Value:       v,
		ValueType:   s.ValueType,
		Description: s.Description,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
	if s.Metadata != nil {
		view.Metadata = map[string]any(s.Metadata)
	}
	return view, nil
}

func toViews(rows []models.Setting) ([]View, error) {
	out := make([]View, 0, len(rows))
	for i := range rows {
		v, err := toView(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, nil
}

// GetSetting returns one setting, or an error wrapping apperr.ErrNotFound.
func (s *Service) GetSetting(ctx context.Context, key models.SettingKey, scope models.Scope, scopeID *int64) (*View, error) {
	key, err := normalizeTuple(key, scope, scopeID)
	if err != nil {
		return nil, err
	}
	row, err := s.store.Get(ctx, key, scope, scopeID)
	if err != nil {
		return nil, err
	}
	return toView(row)
}

// CreateSetting validates and inserts a new setting. An existing tuple
// yields apperr.ErrConflict.
func (s *Service) CreateSetting(ctx context.Context, req CreateRequest) (*View, error) {
	key, err := normalizeTuple(req.Key, req.Scope, req.ScopeID)
	if err != nil {
		return nil, err
	}
	row, err := buildRow(key, req.Scope, req.ScopeID, req.SettingData)
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, row); err != nil {
		return nil, err
	}
	s.log.Info("setting created", "key", key, "scope", req.Scope, "scope_id", req.ScopeID)
	s.afterWrite(ctx, key, req.Scope, "create")
	return toView(row)
}

// UpsertSetting validates data and creates or overwrites the tuple.
func (s *Service) UpsertSetting(ctx context.Context, key models.SettingKey, scope models.Scope, scopeID *int64, data SettingData) (*View, error) {
	key, err := normalizeTuple(key, scope, scopeID)
	if err != nil {
		return nil, err
	}
	row, err := buildRow(key, scope, scopeID, data)
	if err != nil {
		return nil, err
	}
	saved, err := s.store.Upsert(ctx, row)
	if err != nil {
		return nil, err
	}
	s.log.Info("setting upserted", "key", key, "scope", scope, "scope_id", scopeID)
	s.afterWrite(ctx, key, scope, "upsert")
	return toView(saved)
}

// DeleteSetting removes the tuple. Deleting an absent tuple succeeds.
func (s *Service) DeleteSetting(ctx context.Context, key models.SettingKey, scope models.Scope, scopeID *int64) error {
	key, err := normalizeTuple(key, scope, scopeID)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, key, scope, scopeID); err != nil {
		return err
	}
	s.log.Info("setting deleted", "key", key, "scope", scope, "scope_id", scopeID)
	s.afterWrite(ctx, key, scope, "delete")
	return nil
}

// GetSettingsByScope lists every setting in scope, narrowed to scopeID when
// it is non-nil.
func (s *Service) GetSettingsByScope(ctx context.Context, scope models.Scope, scopeID *int64) ([]View, error) {
	if !scope.Valid() {
		return nil, validationf("unknown scope %q", scope)
	}
	if scope == models.ScopeGlobal && scopeID != nil {
		return nil, validationf("scope_id must be empty for global scope (got %d)", *scopeID)
	}
	rows, err := s.store.ListByScope(ctx, scope, scopeID)
	if err != nil {
		return nil, err
	}
	return toViews(rows)
}

// GetAPISettings lists api-scoped settings for one API client.
func (s *Service) GetAPISettings(ctx context.Context, apiID *int64) ([]View, error) {
	return s.GetSettingsByScope(ctx, models.ScopeAPI, apiID)
}

// GetChatSettings lists chat-scoped settings for one conversation.
func (s *Service) GetChatSettings(ctx context.Context, chatID *int64) ([]View, error) {
	return s.GetSettingsByScope(ctx, models.ScopeChat, chatID)
}

// GetGlobalSettings lists global settings.
func (s *Service) GetGlobalSettings(ctx context.Context) ([]View, error) {
	return s.GetSettingsByScope(ctx, models.ScopeGlobal, nil)
}

// UpdateSettingsBatch upserts each entry in order. It is not transactional:
// when an entry fails, the entries before it stay committed and are
// returned alongside the error.
func (s *Service) UpdateSettingsBatch(ctx context.Context, entries []BatchEntry, scope models.Scope, scopeID *int64) ([]View, error) {
	out := make([]View, 0, len(entries))
	for i, e := range entries {
		v, err := s.UpsertSetting(ctx, e.Key, scope, scopeID, e.SettingData)
		if err != nil {
			return out, fmt.Errorf("settings: batch entry %d (%s): %w", i, e.Key, err)
		}
		out = append(out, *v)
	}
	return out, nil
}

// Lookup resolves key for a conversation: the chat-scoped value for chatID
// when one exists, else the global value. Neither present yields
// apperr.ErrNotFound.
func (s *Service) Lookup(ctx context.Context, key models.SettingKey, chatID *int64) (*View, error) {
	if chatID != nil {
		v, err := s.GetSetting(ctx, key, models.ScopeChat, chatID)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
	}
	return s.GetSetting(ctx, key, models.ScopeGlobal, nil)
}

// SeedDefaults creates the given global settings, leaving any that already
// exist untouched. It returns how many rows were created.
func (s *Service) SeedDefaults(ctx context.Context, entries []BatchEntry) (int, error) {
	created := 0
	for _, e := range entries {
		_, err := s.CreateSetting(ctx, CreateRequest{Key: e.Key, Scope: models.ScopeGlobal, SettingData: e.SettingData})
		if errors.Is(err, apperr.ErrConflict) {
			continue
		}
		if err != nil {
			return created, fmt.Errorf("settings: seed %s: %w", e.Key, err)
		}
		created++
	}
	return created, nil
}

// DefaultSystemPrompt returns the global system prompt, cached for the life
// of the process until invalidated. With no global system_prompt setting the
// fallback prompt is returned. Load failures are returned, not cached.
func (s *Service) DefaultSystemPrompt(ctx context.Context) (string, error) {
	return s.cache.Get(ctx, func(ctx context.Context) (string, error) {
		row, err := s.store.Get(ctx, models.KeySystemPrompt, models.ScopeGlobal, nil)
		if errors.Is(err, apperr.ErrNotFound) {
			s.log.Debug("system prompt cache populated from fallback")
			return s.fallback, nil
		}
		if err != nil {
			return "", fmt.Errorf("settings: load default system prompt: %w", err)
		}
		s.log.Debug("system prompt cache populated", "updated_at", row.UpdatedAt)
		return row.Value, nil
	})
}

// InvalidateSystemPromptCache empties the cached default system prompt.
func (s *Service) InvalidateSystemPromptCache() {
	s.cache.Invalidate()
}

// HandleInvalidation applies an invalidation received from another
// instance.
func (s *Service) HandleInvalidation(ev Invalidation) {
	if affectsDefaultPrompt(ev.Key, ev.Scope) {
		s.cache.Invalidate()
		s.log.Info("system prompt cache invalidated", "trigger", "remote", "origin", ev.Origin)
	}
}

// affectsDefaultPrompt is the one trigger for cache invalidation: the cache
// backs the global system prompt, so only writes to that tuple touch it.
func affectsDefaultPrompt(key models.SettingKey, scope models.Scope) bool {
	return key == models.KeySystemPrompt && scope == models.ScopeGlobal
}

func (s *Service) afterWrite(ctx context.Context, key models.SettingKey, scope models.Scope, op string) {
	if !affectsDefaultPrompt(key, scope) {
		return
	}
	s.cache.Invalidate()
	s.log.Info("system prompt cache invalidated", "trigger", op)
	if s.broadcaster == nil {
		return
	}
	if err := s.broadcaster.Publish(ctx, Invalidation{Key: key, Scope: scope}); err != nil {
		s.log.Warn("failed to broadcast invalidation", "key", key, "error", err)
	}
}

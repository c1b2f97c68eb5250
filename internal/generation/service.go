package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zulandar/locallm/internal/apperr"
	"github.com/zulandar/locallm/internal/config"
	"github.com/zulandar/locallm/internal/conversation"
	"github.com/zulandar/locallm/internal/logger"
	"github.com/zulandar/locallm/internal/models"
	"github.com/zulandar/locallm/internal/settings"
)

// DefaultResolution is used for image requests that name no size.
const DefaultResolution = "512x512"

// TextRequest is one text generation turn.
type TextRequest struct {
	ConversationID *uint     `json:"conversation_id,omitempty"`
	Prompt         string    `json:"prompt"`
	ModelName      string    `json:"model_name,omitempty"`
	SystemPrompt   string    `json:"system_prompt,omitempty"`
	Parameters     Overrides `json:"parameters"`
}

// TextResult is the outcome of a text turn.
type TextResult struct {
	Text             string          `json:"text"`
	ConversationID   uint            `json:"conversation_id"`
	UserMessage      *models.Message `json:"user_message"`
	AssistantMessage *models.Message `json:"assistant_message"`
	Params           Params          `json:"parameters"`
}

// ImageRequest asks for one image.
type ImageRequest struct {
	Prompt     string `json:"prompt"`
	ModelName  string `json:"model_name,omitempty"`
	Resolution string `json:"resolution,omitempty"`
}

// ImageResult is the URL of a generated image.
type ImageResult struct {
	URL        string `json:"url"`
	ModelName  string `json:"model_name"`
	Resolution string `json:"resolution"`
}

// Service runs generation turns.
type Service struct {
	manager    *conversation.Manager
	settings   SettingLookup
	backend    Backend
	locks      *conversation.Locker
	defaults   Params
	imageModel string
	timeout    time.Duration
	log        *logger.Logger
}

// ServiceOpts holds parameters for creating a Service.
type ServiceOpts struct {
	Manager  *conversation.Manager
	Settings SettingLookup // optional; nil skips settings-based defaults
	Backend  Backend       // defaults to DisabledBackend
	Locker   *conversation.Locker
	Config   config.GenerationConfig
	Logger   *logger.Logger
}

// NewService creates a Service.
func NewService(opts ServiceOpts) (*Service, error) {
	if opts.Manager == nil {
		return nil, fmt.Errorf("generation: service: conversation manager is required")
	}
	defaults := DefaultParams(opts.Config)
	if err := defaults.Validate(); err != nil {
		return nil, fmt.Errorf("generation: service: configured defaults: %w", err)
	}
	backend := opts.Backend
	if backend == nil {
		backend = DisabledBackend{}
	}
	locks := opts.Locker
	if locks == nil {
		locks = conversation.NewLocker()
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		manager:    opts.Manager,
		settings:   opts.Settings,
		backend:    backend,
		locks:      locks,
		defaults:   defaults,
		imageModel: opts.Config.ImageModel,
		timeout:    opts.Config.Timeout,
		log:        log.With("service", "generation", "backend", backend.Name()),
	}, nil
}

// GenerateText runs one turn: it stores the user prompt, builds the context
// from earlier messages, calls the backend and stores the reply. When the
// backend fails the user message stays stored.
func (s *Service) GenerateText(ctx context.Context, req TextRequest) (*TextResult, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("generation: %w: prompt must not be empty", apperr.ErrValidation)
	}
	if err := s.checkOverrides(req.Parameters); err != nil {
		return nil, err
	}

	// A new conversation is invisible to other requests until this one
	// returns, so only existing conversations need the lock.
	var existing *models.Conversation
	var chatID *int64
	if req.ConversationID != nil {
		unlock := s.locks.Lock(*req.ConversationID)
		defer unlock()
		conv, err := s.manager.Conversations().Get(ctx, *req.ConversationID)
		if err != nil {
			return nil, err
		}
		existing = conv
		id := int64(conv.ID)
		chatID = &id
	}

	// Everything the turn needs from settings is resolved before the first
	// write, so bad stored data never leaves a conversation behind.
	modelName, err := s.resolveModel(ctx, existing, req.ModelName)
	if err != nil {
		return nil, err
	}
	base := s.defaults
	base.Model = modelName
	params, err := resolveParams(ctx, s.settings, chatID, base, req.Parameters)
	if err != nil {
		return nil, err
	}

	conv, userMsg, err := s.manager.ProcessRequest(ctx, conversation.Request{
		ConversationID: req.ConversationID,
		Prompt:         req.Prompt,
		ModelType:      models.ModelTypeText,
		ModelName:      modelName,
		SystemPrompt:   req.SystemPrompt,
	})
	if err != nil {
		return nil, err
	}

	history, err := s.manager.History(ctx, conv.ID, userMsg.ID)
	if err != nil {
		return nil, err
	}
	systemPrompt, err := s.manager.EffectiveSystemPrompt(ctx, conv)
	if err != nil {
		return nil, err
	}
	prompt := conversation.FormatPrompt(conversation.FormatContext(history, systemPrompt), req.Prompt)

	log := s.log.With("conversation_id", conv.ID, "model", params.Model)
	log.Info("generation started", "history", len(history), "prompt_chars", len(prompt))
	start := time.Now()

	text, err := s.callText(ctx, prompt, params)
	elapsed := time.Since(start)
	if err != nil {
		log.Error("generation failed", "error", err, "duration", elapsed.String())
		return nil, err
	}

	info := params.Info()
	info["backend"] = s.backend.Name()
	info["prompt_chars"] = len(prompt)
	info["duration_ms"] = elapsed.Milliseconds()
	reply, err := s.manager.AddAssistantMessage(ctx, conv.ID, text, info)
	if err != nil {
		return nil, err
	}
	log.Info("generation finished", "duration", elapsed.String(), "reply_chars", len(text))

	return &TextResult{
		Text:             text,
		ConversationID:   conv.ID,
		UserMessage:      userMsg,
		AssistantMessage: reply,
		Params:           params,
	}, nil
}

// resolveModel picks the text model for a turn. An existing conversation
// uses its chat-scoped model_name setting, else the model it was created
// with. A new one uses the requested model, else the global model_name
// setting, else the configured default.
func (s *Service) resolveModel(ctx context.Context, existing *models.Conversation, requested string) (string, error) {
	if existing != nil {
		id := int64(existing.ID)
		view, err := s.modelSetting(ctx, &id)
		if err != nil {
			return "", err
		}
		if view != nil && view.Scope == models.ScopeChat {
			return checkModel(view.Value)
		}
		return existing.ModelName, nil
	}
	if requested != "" {
		return checkModel(requested)
	}
	view, err := s.modelSetting(ctx, nil)
	if err != nil {
		return "", err
	}
	if view != nil {
		return checkModel(view.Value)
	}
	return checkModel(s.defaults.Model)
}

func (s *Service) modelSetting(ctx context.Context, chatID *int64) (*settings.View, error) {
	if s.settings == nil {
		return nil, nil
	}
	view, err := s.settings.Lookup(ctx, models.KeyModelName, chatID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("generation: setting %s: %w", models.KeyModelName, err)
	}
	return view, nil
}

func checkModel(name any) (string, error) {
	v, err := settings.CheckValue(models.KeyModelName, name)
	if err != nil {
		return "", fmt.Errorf("generation: %w", err)
	}
	return v.(string), nil
}

// checkOverrides rejects out-of-range request parameters before anything is
// written.
func (s *Service) checkOverrides(o Overrides) error {
	_, err := resolveParams(context.Background(), nil, nil, s.defaults, o)
	return err
}

func (s *Service) callText(ctx context.Context, prompt string, p Params) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	text, err := s.backend.Generate(ctx, prompt, p)
	if err != nil {
		return "", fmt.Errorf("generation: text via %s: %w: %w", s.backend.Name(), apperr.ErrBackend, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("generation: text via %s: %w: empty reply", s.backend.Name(), apperr.ErrBackend)
	}
	return text, nil
}

// GenerateImage produces one image. Image requests are not recorded in any
// conversation.
func (s *Service) GenerateImage(ctx context.Context, req ImageRequest) (*ImageResult, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("generation: %w: prompt must not be empty", apperr.ErrValidation)
	}
	model := req.ModelName
	if model == "" {
		model = s.imageModel
	}
	if !models.SupportedModel(models.ModelTypeImage, model) {
		return nil, fmt.Errorf("generation: %w: unsupported image model %q", apperr.ErrValidation, model)
	}
	resolution := req.Resolution
	if resolution == "" {
		resolution = DefaultResolution
	}
	w, h, err := ParseResolution(resolution)
	if err != nil {
		return nil, err
	}
	resolution = fmt.Sprintf("%dx%d", w, h)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	start := time.Now()
	url, err := s.backend.GenerateImage(ctx, req.Prompt, model, resolution)
	if err != nil {
		s.log.Error("image generation failed", "model", model, "error", err)
		return nil, fmt.Errorf("generation: image via %s: %w: %w", s.backend.Name(), apperr.ErrBackend, err)
	}
	s.log.Info("image generated", "model", model, "resolution", resolution, "duration", time.Since(start).String())
	return &ImageResult{URL: url, ModelName: model, Resolution: resolution}, nil
}

package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/zulandar/locallm/internal/apperr"
	"github.com/zulandar/locallm/internal/config"
	"github.com/zulandar/locallm/internal/logger"
	"github.com/zulandar/locallm/internal/models"
)

// DefaultTitle is the title given to conversations created implicitly by a
// generation request.
const DefaultTitle = "New Conversation"

// SystemPrompter supplies the global default system prompt.
type SystemPrompter interface {
	DefaultSystemPrompt(ctx context.Context) (string, error)
}

// Request is the conversation-relevant part of a generation request.
type Request struct {
	ConversationID *uint
	Prompt         string
	ModelType      models.ModelType // used only when a conversation is created
	ModelName      string           // used only when a conversation is created
	SystemPrompt   string           // used only when a conversation is created
}

// Manager orchestrates the conversation side of one generation turn.
type Manager struct {
	conversations *Store
	messages      *MessageStore
	prompts       SystemPrompter
	welcome       string
	log           *logger.Logger
}

// ManagerOpts holds parameters for creating a Manager.
type ManagerOpts struct {
	Conversations  *Store
	Messages       *MessageStore
	Prompts        SystemPrompter
	Logger         *logger.Logger // defaults to logger.Nop()
	WelcomeMessage string         // defaults to config.DefaultWelcomeMessage
}

// NewManager creates a Manager.
func NewManager(opts ManagerOpts) (*Manager, error) {
	if opts.Conversations == nil {
		return nil, fmt.Errorf("conversation: manager: conversation store is required")
	}
	if opts.Messages == nil {
		return nil, fmt.Errorf("conversation: manager: message store is required")
	}
	if opts.Prompts == nil {
		return nil, fmt.Errorf("conversation: manager: system prompter is required")
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	welcome := opts.WelcomeMessage
	if welcome == "" {
		welcome = config.DefaultWelcomeMessage
	}
	return &Manager{
		conversations: opts.Conversations,
		messages:      opts.Messages,
		prompts:       opts.Prompts,
		welcome:       welcome,
		log:           log.With("service", "conversation"),
	}, nil
}

// Conversations returns the underlying conversation store.
func (m *Manager) Conversations() *Store { return m.conversations }

// Messages returns the underlying message store.
func (m *Manager) Messages() *MessageStore { return m.messages }

// ProcessRequest resolves or creates the conversation for req and persists
// the user's prompt as a message. The conversation is resolved before the
// message is written.
func (m *Manager) ProcessRequest(ctx context.Context, req Request) (*models.Conversation, *models.Message, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, nil, validationf("prompt must not be empty")
	}

	var (
		conv *models.Conversation
		err  error
	)
	if req.ConversationID == nil {
		conv, err = m.CreateConversation(ctx, req.ModelType, req.ModelName, req.SystemPrompt)
	} else {
		conv, err = m.conversations.Get(ctx, *req.ConversationID)
	}
	if err != nil {
		return nil, nil, err
	}

	msg, err := m.AddMessage(ctx, conv.ID, req.Prompt, models.RoleUser)
	if err != nil {
		return nil, nil, err
	}
	return conv, msg, nil
}

// CreateConversation creates an empty conversation titled DefaultTitle.
func (m *Manager) CreateConversation(ctx context.Context, modelType models.ModelType, modelName, systemPrompt string) (*models.Conversation, error) {
	conv := &models.Conversation{
		Title:        DefaultTitle,
		ModelType:    modelType,
		ModelName:    modelName,
		SystemPrompt: systemPrompt,
	}
	if err := m.conversations.Create(ctx, conv); err != nil {
		return nil, err
	}
	m.log.Info("conversation created", "conversation_id", conv.ID, "model", conv.ModelName)
	return conv, nil
}

// StartConversation creates a conversation with an explicit title and
// greets it with the assistant welcome message.
func (m *Manager) StartConversation(ctx context.Context, title string, modelType models.ModelType, modelName, systemPrompt string) (*models.Conversation, *models.Message, error) {
	if strings.TrimSpace(title) == "" {
		title = DefaultTitle
	}
	conv := &models.Conversation{
		Title:        title,
		ModelType:    modelType,
		ModelName:    modelName,
		SystemPrompt: systemPrompt,
	}
	if err := m.conversations.Create(ctx, conv); err != nil {
		return nil, nil, err
	}
	welcome, err := m.AddMessage(ctx, conv.ID, m.welcome, models.RoleAssistant)
	if err != nil {
		return nil, nil, err
	}
	m.log.Info("conversation started", "conversation_id", conv.ID, "title", conv.Title)
	return conv, welcome, nil
}

// History returns the conversation's messages with id below beforeID, in
// ascending id order. A zero beforeID returns the whole history.
func (m *Manager) History(ctx context.Context, conversationID, beforeID uint) ([]models.Message, error) {
	if _, err := m.conversations.Get(ctx, conversationID); err != nil {
		return nil, err
	}
	return m.messages.ListByConversation(ctx, conversationID, HistoryOpts{BeforeID: beforeID})
}

// AddMessage persists one message and returns it with its id set.
func (m *Manager) AddMessage(ctx context.Context, conversationID uint, content string, role models.Role) (*models.Message, error) {
	return m.addMessage(ctx, &models.Message{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
	})
}

// AddAssistantMessage persists a generated reply along with the parameters
// that produced it.
func (m *Manager) AddAssistantMessage(ctx context.Context, conversationID uint, content string, info map[string]any) (*models.Message, error) {
	return m.addMessage(ctx, &models.Message{
		ConversationID: conversationID,
		Role:           models.RoleAssistant,
		Content:        content,
		GenerationInfo: info,
	})
}

func (m *Manager) addMessage(ctx context.Context, msg *models.Message) (*models.Message, error) {
	if err := m.messages.Create(ctx, msg); err != nil {
		return nil, err
	}
	if msg.ID == 0 {
		return nil, fmt.Errorf("conversation: %w: message store returned no id", apperr.ErrIntegrity)
	}
	return msg, nil
}

// EffectiveSystemPrompt returns the conversation's own system prompt when it
// is set, otherwise the global default.
func (m *Manager) EffectiveSystemPrompt(ctx context.Context, conv *models.Conversation) (string, error) {
	if conv != nil && strings.TrimSpace(conv.SystemPrompt) != "" {
		return conv.SystemPrompt, nil
	}
	p, err := m.prompts.DefaultSystemPrompt(ctx)
	if err != nil {
		return "", fmt.Errorf("conversation: default system prompt: %w", err)
	}
	return p, nil
}

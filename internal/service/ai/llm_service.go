package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/care-portal/backend/internal/config"
	"github.com/zhouzirui/care-portal/backend/internal/model/chat"
	"github.com/zhouzirui/care-portal/backend/pkg/logging"
)

const historyLimit = 10

// Service drafts the doctor's first acknowledgement to a patient message
// with an LLM chain.
type Service struct {
	prompts *PromptBuilder
	chain   compose.Runnable[map[string]any, *schema.Message]
	logger  *logging.Logger
}

// NewService creates a new AI service instance.
func NewService(ctx context.Context, cfg config.AIConfig, logger *logging.Logger) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewServiceWithModel(ctx, chatModel, logger)
}

// NewServiceWithModel builds the chain around an existing chat model.
func NewServiceWithModel(ctx context.Context, chatModel model.ChatModel, logger *logging.Logger) (*Service, error) {
	if logger == nil {
		logger = logging.Default()
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		prompts: NewPromptBuilder(),
		chain:   runnable,
		logger:  logger,
	}, nil
}

// Reply implements the chat service Responder.
func (s *Service) Reply(ctx context.Context, session chat.Session, history []chat.Message, userText string) (string, error) {
	input := map[string]any{
		"system":  s.prompts.SystemPrompt(session.Category),
		"history": buildHistoryMessages(history, userText),
		"query":   userText,
	}

	response, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}

	s.logger.Info("drafted doctor reply", "session_id", session.ID, "category", session.Category, "length", len(response.Content))
	return response.Content, nil
}

// buildHistoryMessages maps the last turns to chain messages, leaving out
// the trailing copy of the message being answered.
func buildHistoryMessages(messages []chat.Message, userText string) []*schema.Message {
	if n := len(messages); n > 0 && messages[n-1].Direction == chat.Sent && messages[n-1].Text == userText {
		messages = messages[:n-1]
	}
	if len(messages) == 0 {
		return nil
	}

	startIdx := 0
	if len(messages) > historyLimit {
		startIdx = len(messages) - historyLimit
	}

	history := make([]*schema.Message, 0, len(messages)-startIdx)
	for _, msg := range messages[startIdx:] {
		switch msg.Direction {
		case chat.Sent:
			history = append(history, schema.UserMessage(msg.Text))
		case chat.Received:
			history = append(history, schema.AssistantMessage(msg.Text, nil))
		}
	}
	return history
}

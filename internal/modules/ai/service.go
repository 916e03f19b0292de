package ai

import (
	"context"
	"errors"

	"github.com/paperdeck/core/internal/modules/settings"
)

// ErrNoProvider means no enabled AI provider is configured. Batch
// operations check this before planning any work.
var ErrNoProvider = errors.New("no enabled AI provider configured")

// Assignment selects which model assignment a call uses.
type Assignment int

const (
	AssignColumn Assignment = iota
	AssignChat
)

// Service routes completion calls to the configured provider.
type Service struct {
	settings *settings.Service
}

func NewService(settingsSvc *settings.Service) *Service {
	return &Service{settings: settingsSvc}
}

func (s *Service) provider(kind Assignment) (*settings.AIProvider, error) {
	cur, err := s.settings.Get()
	if err != nil {
		return nil, err
	}

	var assignment *settings.AIModelAssignment
	switch kind {
	case AssignChat:
		assignment = cur.AI.ChatModel
	default:
		assignment = cur.AI.ColumnModel
	}

	provider := selectProvider(cur.AI, assignment)
	if provider == nil {
		return nil, ErrNoProvider
	}
	return provider, nil
}

// Ready reports whether a completion call could succeed right now.
// Used as a pre-flight check before batch scheduling.
func (s *Service) Ready(kind Assignment) error {
	_, err := s.provider(kind)
	return err
}

// Complete runs a single non-streaming completion.
func (s *Service) Complete(ctx context.Context, kind Assignment, systemPrompt, prompt string, maxTokens int) (string, error) {
	provider, err := s.provider(kind)
	if err != nil {
		return "", err
	}
	return callProvider(ctx, provider, systemPrompt, prompt, maxTokens)
}

// CompleteStream runs a streaming completion, invoking onToken per chunk,
// and returns the full accumulated text.
func (s *Service) CompleteStream(ctx context.Context, kind Assignment, systemPrompt, prompt string, maxTokens int, onToken func(string)) (string, error) {
	provider, err := s.provider(kind)
	if err != nil {
		return "", err
	}

	cur, err := s.settings.Get()
	if err != nil {
		return "", err
	}
	if !cur.AI.EnableStreaming {
		result, err := callProvider(ctx, provider, systemPrompt, prompt, maxTokens)
		if err != nil {
			return "", err
		}
		if onToken != nil && result != "" {
			onToken(result)
		}
		return result, nil
	}

	return callProviderStream(ctx, provider, systemPrompt, prompt, maxTokens, onToken)
}

package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/paperdeck/core/internal/modules/ai"
	"github.com/paperdeck/core/internal/modules/library"
	"github.com/paperdeck/core/internal/modules/settings"
)

const chatSystemPrompt = "You are a research assistant helping a user understand academic papers. " +
	"Answer questions using the provided paper context. When the context does not contain " +
	"the answer, say so instead of guessing."

const maxChatHistory = 20

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"` // user | assistant
	Content string `json:"content"`
}

// Request is a chat completion request scoped to zero or more papers.
type Request struct {
	Message  string    `json:"message" binding:"required"`
	PaperIDs []string  `json:"paper_ids"`
	History  []Message `json:"history"`
}

// Service answers chat requests grounded in library paper content.
type Service struct {
	ai       *ai.Service
	lib      *library.Service
	settings *settings.Service
}

func NewService(aiSvc *ai.Service, lib *library.Service, settingsSvc *settings.Service) *Service {
	return &Service{ai: aiSvc, lib: lib, settings: settingsSvc}
}

// Ready reports whether a chat completion could succeed right now.
func (s *Service) Ready() error {
	return s.ai.Ready(ai.AssignChat)
}

// Stream runs a streaming chat completion, invoking onToken per chunk,
// and returns the full response text.
func (s *Service) Stream(ctx context.Context, req Request, onToken func(string)) (string, error) {
	prompt, err := s.buildPrompt(ctx, req)
	if err != nil {
		return "", err
	}
	return s.ai.CompleteStream(ctx, ai.AssignChat, chatSystemPrompt, prompt, 0, onToken)
}

// buildPrompt assembles paper context, recent history and the user's
// message into a single prompt.
func (s *Service) buildPrompt(ctx context.Context, req Request) (string, error) {
	var b strings.Builder

	charLimit := 0
	if cfg, err := s.settings.Get(); err == nil {
		charLimit = cfg.Table.SourceCharLimit
	}

	for _, paperID := range req.PaperIDs {
		section, err := s.paperContext(ctx, paperID, charLimit)
		if err != nil {
			return "", err
		}
		if section != "" {
			b.WriteString(section)
			b.WriteString("\n\n")
		}
	}

	history := req.History
	if len(history) > maxChatHistory {
		history = history[len(history)-maxChatHistory:]
	}
	for _, msg := range history {
		role := "User"
		if msg.Role == "assistant" {
			role = "Assistant"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, msg.Content)
	}

	fmt.Fprintf(&b, "User: %s\nAssistant:", req.Message)
	return b.String(), nil
}

func (s *Service) paperContext(ctx context.Context, paperID string, charLimit int) (string, error) {
	paper, err := s.lib.GetByID(ctx, paperID)
	if err != nil {
		return "", err
	}
	if paper == nil {
		return "", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "--- Paper: %s ---\n", paper.Title)
	if len(paper.Authors) > 0 {
		fmt.Fprintf(&b, "Authors: %s\n", strings.Join(paper.Authors, ", "))
	}
	if paper.Year > 0 {
		fmt.Fprintf(&b, "Year: %d\n", paper.Year)
	}
	if paper.Abstract != "" {
		fmt.Fprintf(&b, "Abstract: %s\n", paper.Abstract)
	}

	text, err := s.lib.NoteText(ctx, paperID)
	if err != nil {
		return "", err
	}
	if text != "" {
		if charLimit > 0 {
			runes := []rune(text)
			if len(runes) > charLimit {
				text = string(runes[:charLimit]) + "..."
			}
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String(), nil
}

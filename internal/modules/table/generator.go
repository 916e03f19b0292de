package table

import (
	"context"
	"fmt"
	"strings"

	"github.com/paperdeck/core/internal/models"
)

// Completer is the generation backend the table engine calls. The table
// batch uses only the non-streaming shape; chat streams through the same
// backend elsewhere.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, error)
	// Ready reports, without a network call, whether Complete could
	// succeed. Used as the batch pre-flight check.
	Ready() error
}

const systemInstruction = "You extract structured information from academic papers. " +
	"Be concise and factual. Answer directly with the requested information, no preamble."

// defaultMaxTokens bounds a cell completion when no response budget is set.
const defaultMaxTokens = 1024

// Generator turns (paper metadata, column, source text) into a cell value.
// Purely functional apart from the outbound completion call.
type Generator struct {
	completer Completer
	// SourceCharLimit is the hard cap on source characters fed into the
	// prompt. Longer material is truncated, not chunked.
	SourceCharLimit int
	// MaxTokens caps the completion response. Values < 1 fall back to
	// defaultMaxTokens.
	MaxTokens int
}

func NewGenerator(completer Completer, sourceCharLimit, maxTokens int) *Generator {
	return &Generator{
		completer:       completer,
		SourceCharLimit: sourceCharLimit,
		MaxTokens:       maxTokens,
	}
}

// Generate produces the cell value for one task. Backend failures and
// empty responses come back wrapped in ErrGeneration.
func (g *Generator) Generate(ctx context.Context, paper *models.PaperModel, column ColumnDefinition, sourceText string, responseBudget int) (string, error) {
	userPrompt := g.BuildPrompt(paper, column, sourceText, responseBudget)

	maxTokens := g.MaxTokens
	if maxTokens < 1 {
		maxTokens = defaultMaxTokens
	}
	result, err := g.completer.Complete(ctx, systemInstruction, userPrompt, maxTokens)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	result = strings.TrimSpace(result)
	if result == "" {
		return "", fmt.Errorf("%w: empty response", ErrGeneration)
	}
	return result, nil
}

// BuildPrompt assembles the user prompt: paper title, capped source text
// and the column instruction. responseBudget > 0 adds a best-effort
// conciseness constraint; 0 means unlimited.
func (g *Generator) BuildPrompt(paper *models.PaperModel, column ColumnDefinition, sourceText string, responseBudget int) string {
	instruction := strings.TrimSpace(column.GenerationInstruction)
	if instruction == "" {
		instruction = fmt.Sprintf("Extract information related to %q from the paper.", column.Name)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Paper: %s\n", paper.Title)
	if len(paper.Authors) > 0 {
		fmt.Fprintf(&sb, "Authors: %s\n", strings.Join(paper.Authors, ", "))
	}
	if paper.Year != 0 {
		fmt.Fprintf(&sb, "Year: %d\n", paper.Year)
	}
	fmt.Fprintf(&sb, "\nSource material:\n%s\n", truncateText(sourceText, g.SourceCharLimit))
	fmt.Fprintf(&sb, "\nTask: %s", instruction)
	if responseBudget > 0 {
		fmt.Fprintf(&sb, "\nBe concise, max %d words.", responseBudget)
	}
	return sb.String()
}

// truncateText hard-caps text at maxLen runes.
func truncateText(text string, maxLen int) string {
	if maxLen <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen]) + "..."
}

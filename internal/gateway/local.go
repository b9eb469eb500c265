package gateway

import (
	"context"
	"errors"
	"strings"

	"github.com/datasmith-ai/datasmith/internal/prompt"
)

// LocalModel is the offline fallback used when no API key is configured.
// It echoes the tail of the prompt so pipelines stay exercisable without
// network access.
type LocalModel struct{}

func NewLocalModel() *LocalModel { return &LocalModel{} }

func (l *LocalModel) Generate(ctx context.Context, promptText string, purpose prompt.Purpose) (string, error) {
	if strings.TrimSpace(promptText) == "" {
		return "", errors.New("empty prompt")
	}
	lines := strings.Split(strings.TrimSpace(promptText), "\n")
	return "[local-stub] " + strings.TrimSpace(lines[len(lines)-1]), nil
}

func (l *LocalModel) Name() string { return "local" }

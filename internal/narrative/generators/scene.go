package generators

import (
	"context"
	"fmt"
	"strings"

	types "github.com/yungbote/qalam-backend/internal/domain"
	"github.com/yungbote/qalam-backend/internal/narrative/preferences"
	"github.com/yungbote/qalam-backend/internal/narrative/prompts"
	apperrors "github.com/yungbote/qalam-backend/internal/pkg/errors"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
)

// TextGenerator runs one text-mode prompt target through the LLM.
type TextGenerator struct {
	llm       LLM
	assembler *prompts.Assembler
	log       *logger.Logger
}

func NewTextGenerator(log *logger.Logger, llm LLM, assembler *prompts.Assembler) *TextGenerator {
	if log == nil {
		log = logger.NewNop()
	}
	return &TextGenerator{llm: llm, assembler: assembler, log: log.With("component", "TextGenerator")}
}

// Scene writes one scene and returns the raw prose.
func (g *TextGenerator) Scene(ctx context.Context, req prompts.Request, snap *types.UKBSnapshot, prefs preferences.Preferences) (string, error) {
	return g.Generate(ctx, prompts.TargetScene, req, snap, prefs)
}

func (g *TextGenerator) Generate(ctx context.Context, target prompts.Target, req prompts.Request, snap *types.UKBSnapshot, prefs preferences.Preferences) (string, error) {
	if g.llm == nil || g.assembler == nil {
		return "", fmt.Errorf("%w: text generator needs an llm and prompt templates", apperrors.ErrDependencyMissing)
	}
	p, err := g.assembler.Assemble(target, req, snap, prefs)
	if err != nil {
		return "", err
	}
	out, err := g.llm.GenerateText(ctx, p.System, p.User)
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("%w: empty %s output", apperrors.ErrTransientLLM, target)
	}
	g.log.Debug("generated text", "target", string(target), "chars", len(out))
	return out, nil
}

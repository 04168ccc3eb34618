package extract

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/tgo/docqa/internal/ratelimit"
	"github.com/tgo/docqa/internal/retry"
)

const aiExtractPrompt = `Extract all text content from these PDF page images, in page order.
Return only the extracted text, preserving the reading order and paragraph breaks.
Do not summarise, translate or add commentary.`

type AIConfig struct {
	MaxAttempts  int
	BaseDelay    time.Duration
	PdftoppmPath string
	DPI          int
	// MaxPages bounds the request size; longer documents are left to the
	// text layer and OCR strategies.
	MaxPages int
}

// AI renders the PDF to page images and asks a vision chat model for the
// text on them.
type AI struct {
	model   model.BaseChatModel
	runner  CommandRunner
	limiter *ratelimit.Limiter
	cfg     AIConfig
	policy  retry.Policy
	logger  zerolog.Logger
}

func NewAI(chatModel model.BaseChatModel, runner CommandRunner, limiter *ratelimit.Limiter, cfg AIConfig, logger zerolog.Logger) *AI {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.PdftoppmPath == "" {
		cfg.PdftoppmPath = "pdftoppm"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 150
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 20
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	a := &AI{
		model:   chatModel,
		runner:  runner,
		limiter: limiter,
		cfg:     cfg,
		logger:  logger.With().Str("component", "extract_ai").Logger(),
	}
	a.policy = retry.Policy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			a.logger.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("ai extraction failed, retrying")
		},
	}
	return a
}

func (a *AI) Name() string {
	return MethodAI
}

func (a *AI) Extract(ctx context.Context, in Input) (*Result, error) {
	if a.model == nil {
		return nil, errors.New("no chat model configured")
	}

	images, err := renderPages(ctx, a.runner, a.cfg.PdftoppmPath, a.cfg.DPI, in.Data)
	if err != nil {
		return nil, fmt.Errorf("ai extraction: %w", err)
	}
	defer images.Close()

	if len(images.paths) > a.cfg.MaxPages {
		return nil, fmt.Errorf("ai extraction: %d pages exceeds the limit of %d", len(images.paths), a.cfg.MaxPages)
	}

	parts := make([]schema.ChatMessagePart, 0, len(images.paths)+1)
	parts = append(parts, schema.ChatMessagePart{Type: schema.ChatMessagePartTypeText, Text: aiExtractPrompt})
	for _, img := range images.paths {
		data, err := os.ReadFile(img)
		if err != nil {
			return nil, fmt.Errorf("ai extraction: %w", err)
		}
		parts = append(parts, schema.ChatMessagePart{
			Type: schema.ChatMessagePartTypeImageURL,
			ImageURL: &schema.ChatMessageImageURL{
				URL:      "data:image/png;base64," + base64.StdEncoding.EncodeToString(data),
				Detail:   schema.ImageURLDetailHigh,
				MIMEType: "image/png",
			},
		})
	}
	msg := &schema.Message{Role: schema.User, MultiContent: parts}

	var text string
	err = retry.Do(ctx, a.policy, func(ctx context.Context) error {
		if err := a.limiter.Wait(ctx); err != nil {
			return err
		}
		out, err := a.model.Generate(ctx, []*schema.Message{msg})
		if err != nil {
			return err
		}
		text = out.Content
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ai extraction: %w", err)
	}

	return &Result{Text: text, PageCount: len(images.paths), Method: MethodAI}, nil
}

package extract

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CommandRunner executes an external program and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok && len(ee.Stderr) > 0 {
			return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(ee.Stderr)))
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

type OCRConfig struct {
	PdftoppmPath  string
	TesseractPath string
	DPI           int
	Language      string
}

// OCR rasterises every page with pdftoppm and reads it back with tesseract.
type OCR struct {
	cfg    OCRConfig
	runner CommandRunner
}

func NewOCR(cfg OCRConfig, runner CommandRunner) *OCR {
	if cfg.PdftoppmPath == "" {
		cfg.PdftoppmPath = "pdftoppm"
	}
	if cfg.TesseractPath == "" {
		cfg.TesseractPath = "tesseract"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 200
	}
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &OCR{cfg: cfg, runner: runner}
}

func (o *OCR) Name() string {
	return MethodOCR
}

func (o *OCR) Extract(ctx context.Context, in Input) (*Result, error) {
	images, err := renderPages(ctx, o.runner, o.cfg.PdftoppmPath, o.cfg.DPI, in.Data)
	if err != nil {
		return nil, err
	}
	defer images.Close()

	pages := make([]string, 0, len(images.paths))
	for i, img := range images.paths {
		out, err := o.runner.Run(ctx, o.cfg.TesseractPath, img, "stdout", "-l", o.cfg.Language)
		if err != nil {
			return nil, fmt.Errorf("ocr page %d: %w", i+1, err)
		}
		pages = append(pages, strings.TrimSpace(string(out)))
	}

	return &Result{
		Text:      strings.Join(pages, "\n\n"),
		PageCount: len(images.paths),
		Method:    MethodOCR,
	}, nil
}

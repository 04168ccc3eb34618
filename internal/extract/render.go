package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// pageImages holds PNG renders of a PDF in page order inside a temp dir.
type pageImages struct {
	dir   string
	paths []string
}

func (p *pageImages) Close() error {
	return os.RemoveAll(p.dir)
}

// renderPages writes data to a temp dir and rasterises it with pdftoppm.
// The caller must Close the result.
func renderPages(ctx context.Context, runner CommandRunner, pdftoppm string, dpi int, data []byte) (*pageImages, error) {
	dir, err := os.MkdirTemp("", "pdfpages-*")
	if err != nil {
		return nil, err
	}
	pages := &pageImages{dir: dir}

	src := filepath.Join(dir, "input.pdf")
	if err := os.WriteFile(src, data, 0o600); err != nil {
		pages.Close()
		return nil, err
	}

	prefix := filepath.Join(dir, "page")
	if _, err := runner.Run(ctx, pdftoppm, "-r", strconv.Itoa(dpi), "-png", src, prefix); err != nil {
		pages.Close()
		return nil, fmt.Errorf("render pages: %w", err)
	}

	images, err := filepath.Glob(prefix + "*.png")
	if err != nil {
		pages.Close()
		return nil, err
	}
	if len(images) == 0 {
		pages.Close()
		return nil, fmt.Errorf("render pages: no images produced")
	}
	sortPages(images)
	pages.paths = images
	return pages, nil
}

// sortPages orders page-N.png files by N whatever the zero padding.
func sortPages(images []string) {
	num := func(p string) int {
		base := strings.TrimSuffix(filepath.Base(p), ".png")
		if i := strings.LastIndex(base, "-"); i >= 0 {
			if n, err := strconv.Atoi(base[i+1:]); err == nil {
				return n
			}
		}
		return 0
	}
	sort.SliceStable(images, func(i, j int) bool { return num(images[i]) < num(images[j]) })
}

package internal

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// Converter renders chapter HTML into an e-reader document.
type Converter interface {
	Convert(ctx context.Context, html, coverTitle, seriesTitle, author string) ([]byte, error)
}

// Calibre shells out to ebook-convert. Each conversion owns a random pair
// of temp files which are removed whether or not the conversion succeeds.
type Calibre struct {
	timeout time.Duration
}

var _ Converter = (*Calibre)(nil)

// NewCalibre creates a converter with a bounded per-conversion runtime.
func NewCalibre() *Calibre {
	return &Calibre{timeout: 5 * time.Minute}
}

// Convert writes the HTML to a temp file, runs ebook-convert, and returns
// the resulting epub bytes.
func (c *Calibre) Convert(ctx context.Context, html, coverTitle, seriesTitle, author string) ([]byte, error) {
	name := randomName(30)
	in := filepath.Join(os.TempDir(), name+".html")
	out := filepath.Join(os.TempDir(), name+".epub")
	defer os.Remove(in)
	defer os.Remove(out)

	if err := os.WriteFile(in, []byte(html), 0o600); err != nil {
		return nil, fmt.Errorf("writing conversion input: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ebook-convert", in, out,
		"--filter-css", "font-family,color,background",
		"--authors", author,
		"--title", coverTitle,
		"--series", seriesTitle,
		"--output-profile", "kindle_oasis",
	)
	output, err := cmd.CombinedOutput()
	Log(ctx).Debug("ebook-convert finished", "title", coverTitle, "output", string(output))
	if err != nil {
		return nil, fmt.Errorf("running ebook-convert: %w", err)
	}

	epub, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("reading conversion output: %w", err)
	}
	return epub, nil
}

const _nameAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomName(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = _nameAlphabet[rand.IntN(len(_nameAlphabet))]
	}
	return string(b)
}

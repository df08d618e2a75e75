// Package report inspects the PDF reports downloaded from BridgeIQ.
package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrNotPDF is returned when the payload does not carry a PDF header.
var ErrNotPDF = errors.New("report is not a PDF document")

const excerptLimit = 280

// Opener reads a stored report by key.
type Opener interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// Summary describes a downloaded report.
type Summary struct {
	SizeBytes int64  `json:"size_bytes"`
	Pages     int    `json:"pages"`
	Text      string `json:"-"`
	Excerpt   string `json:"excerpt,omitempty"`
}

// Inspect loads key from store and summarizes it.
func Inspect(ctx context.Context, store Opener, key string) (Summary, error) {
	if err := ctx.Err(); err != nil {
		return Summary{}, err
	}
	body, err := store.Open(ctx, key)
	if err != nil {
		return Summary{}, fmt.Errorf("inspect report key=%s: %w", key, err)
	}
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		return Summary{}, fmt.Errorf("inspect report key=%s: read: %w", key, err)
	}
	summary, err := InspectBytes(ctx, raw)
	if err != nil {
		return Summary{}, fmt.Errorf("inspect report key=%s: %w", key, err)
	}
	return summary, nil
}

// InspectBytes summarizes an in-memory PDF.
func InspectBytes(ctx context.Context, data []byte) (Summary, error) {
	if err := ctx.Err(); err != nil {
		return Summary{}, err
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return Summary{}, ErrNotPDF
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Summary{}, fmt.Errorf("parse pdf: %w", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return Summary{}, fmt.Errorf("extract pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return Summary{}, fmt.Errorf("extract pdf text: %w", err)
	}

	text := strings.TrimSpace(buf.String())
	return Summary{
		SizeBytes: int64(len(data)),
		Pages:     reader.NumPage(),
		Text:      text,
		Excerpt:   excerpt(text),
	}, nil
}

func excerpt(text string) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	runes := []rune(collapsed)
	if len(runes) <= excerptLimit {
		return collapsed
	}
	return string(runes[:excerptLimit]) + "..."
}

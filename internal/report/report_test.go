package report

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapOpener map[string][]byte

func (m mapOpener) Open(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := m[key]
	if !ok {
		return nil, errors.New("missing " + key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func TestPlaceholderIsReadable(t *testing.T) {
	data := Placeholder("BridgeIQ analysis report", "Request (r-1)")

	summary, err := InspectBytes(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Pages)
	assert.Equal(t, int64(len(data)), summary.SizeBytes)
	assert.Contains(t, summary.Text, "BridgeIQ analysis report")
}

func TestInspectReadsFromStore(t *testing.T) {
	store := mapOpener{"bridgeiq_report_r-1.pdf": Placeholder("hello")}

	summary, err := Inspect(context.Background(), store, "bridgeiq_report_r-1.pdf")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Pages)
}

func TestInspectRejectsNonPDF(t *testing.T) {
	_, err := InspectBytes(context.Background(), []byte("<html>error</html>"))
	assert.ErrorIs(t, err, ErrNotPDF)
}

func TestInspectReportsParseErrors(t *testing.T) {
	_, err := InspectBytes(context.Background(), []byte("%PDF-1.4\ngarbage"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotPDF)
}

func TestInspectMissingKey(t *testing.T) {
	_, err := Inspect(context.Background(), mapOpener{}, "nope.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key=nope.pdf")
}

func TestExcerptTruncates(t *testing.T) {
	long := strings.Repeat("word ", 100)
	got := excerpt(long)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, excerptLimit+3, len([]rune(got)))
	assert.Equal(t, "a b", excerpt("  a \n b "))
}

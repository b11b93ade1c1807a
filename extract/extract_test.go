package extract

import (
	"context"
	"strings"
	"testing"

	"github.com/poiesic/quarry/core"
	"github.com/poiesic/quarry/extract/pdftest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_Pages(t *testing.T) {
	data := pdftest.Build("Revenue grew in the first quarter", "Operating costs (net) fell")

	pages, err := NewPDFExtractor().Extract(context.Background(), data)
	require.NoError(t, err)
	require.Len(t, pages, 2)

	assert.Equal(t, 1, pages[0].Number)
	assert.Equal(t, 2, pages[1].Number)
	assert.Contains(t, pages[0].Text, "Revenue grew")
	assert.Contains(t, pages[1].Text, "Operating costs")
}

func TestExtract_BlankPageKept(t *testing.T) {
	data := pdftest.Build("first", "", "third")

	pages, err := NewPDFExtractor().Extract(context.Background(), data)
	require.NoError(t, err)
	require.Len(t, pages, 3)
	assert.Empty(t, strings.TrimSpace(pages[1].Text))
	assert.Equal(t, 3, pages[2].Number)
}

func TestExtract_LongPage(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("lorem ipsum ", 210))
	data := pdftest.Build(text)

	pages, err := NewPDFExtractor().Extract(context.Background(), data)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.GreaterOrEqual(t, len(pages[0].Text), 2500)
}

func TestExtract_Unreadable(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"garbage", []byte("this is not a pdf at all")},
		{"truncated", pdftest.Build("some text")[:60]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pages, err := NewPDFExtractor().Extract(context.Background(), tt.data)
			assert.ErrorIs(t, err, core.ErrUnreadablePDF)
			assert.Nil(t, pages)
		})
	}
}

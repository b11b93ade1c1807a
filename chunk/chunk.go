// Package chunk splits page text into bounded, overlapping chunks.
package chunk

import (
	"errors"
	"fmt"
	"strings"

	"github.com/poiesic/quarry/core"
	"github.com/tmc/langchaingo/textsplitter"
)

// Sizes used by the ingestion pipeline.
const (
	DefaultSize          = 1000
	DefaultRemoteOverlap = 50
	DefaultLocalOverlap  = 30
	DefaultSeparator     = "\n"
)

var (
	// ErrInvalidSize indicates a chunk size that is not positive.
	ErrInvalidSize = errors.New("chunk size must be positive")

	// ErrInvalidOverlap indicates an overlap that is negative or not smaller than the size.
	ErrInvalidOverlap = errors.New("chunk overlap must be non-negative and smaller than the size")
)

// Options controls how text is split.
type Options struct {
	Size      int
	Overlap   int
	Separator string
}

// DefaultOptions returns the settings used for local files.
func DefaultOptions() Options {
	return Options{Size: DefaultSize, Overlap: DefaultLocalOverlap, Separator: DefaultSeparator}
}

// RemoteOptions returns the settings used for object storage files.
func RemoteOptions() Options {
	return Options{Size: DefaultSize, Overlap: DefaultRemoteOverlap, Separator: DefaultSeparator}
}

// Validate checks the options for consistency.
func (o Options) Validate() error {
	if o.Size <= 0 {
		return fmt.Errorf("%w: %w", core.ErrInvalidArgument, ErrInvalidSize)
	}
	if o.Overlap < 0 || o.Overlap >= o.Size {
		return fmt.Errorf("%w: %w", core.ErrInvalidArgument, ErrInvalidOverlap)
	}
	return nil
}

// Chunker splits text at the preferred separator, falling back to spaces and
// then to single characters when a segment is still too long.
// A Chunker is stateless and safe for concurrent use.
type Chunker struct {
	opts     Options
	splitter textsplitter.RecursiveCharacter
}

// New creates a Chunker.
func New(opts Options) (*Chunker, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	separators := []string{" ", ""}
	if opts.Separator != "" && opts.Separator != " " {
		separators = append([]string{opts.Separator}, separators...)
	}
	return &Chunker{
		opts: opts,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(opts.Size),
			textsplitter.WithChunkOverlap(opts.Overlap),
			textsplitter.WithSeparators(separators),
		),
	}, nil
}

// Options returns the settings the Chunker was created with.
func (c *Chunker) Options() Options {
	return c.opts
}

// Split returns the chunks of text in order. Blank chunks are dropped, so
// blank text yields no chunks.
func (c *Chunker) Split(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	parts, err := c.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("split text: %w", err)
	}
	chunks := make([]string, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		chunks = append(chunks, part)
	}
	return chunks, nil
}

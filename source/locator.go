package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/poiesic/quarry/core"
)

// Locator fetches resource bytes from object storage or the local filesystem
// and validates their signature. It never retries; callers decide when to try again.
type Locator struct {
	store  ObjectStore
	logger *slog.Logger
}

// Option configures a Locator.
type Option func(*Locator)

// WithObjectStore sets the store used for remote locations.
func WithObjectStore(store ObjectStore) Option {
	return func(l *Locator) {
		l.store = store
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Locator) {
		l.logger = logger
	}
}

// NewLocator creates a Locator. Without an object store only local paths resolve.
func NewLocator(opts ...Option) *Locator {
	l := &Locator{logger: slog.Default().With("component", "source-locator")}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Fetch returns the bytes at location.
//
// Errors:
//   - core.ErrSourceUnavailable when the bytes cannot be read (transport failure, missing object)
//   - core.ErrSkipped for known non-PDF artifacts
//   - core.ErrNotAPDF when the content lacks the PDF signature
//   - core.ErrInvalidArgument when the location is blank or malformed
func (l *Locator) Fetch(ctx context.Context, location string) ([]byte, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, fmt.Errorf("%w: empty location", core.ErrInvalidArgument)
	}

	var data []byte
	var err error
	if IsRemote(location) {
		data, err = l.fetchRemote(ctx, location)
	} else {
		data, err = l.fetchLocal(location)
	}
	if err != nil {
		return nil, err
	}

	if err := Classify(data); err != nil {
		l.logger.Warn("content is not a pdf", "location", location, "size", len(data), "err", err)
		return nil, err
	}
	return data, nil
}

func (l *Locator) fetchRemote(ctx context.Context, location string) ([]byte, error) {
	loc, err := ParseObjectURL(location)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidArgument, err)
	}
	if l.store == nil {
		return nil, fmt.Errorf("%w: %w", core.ErrSourceUnavailable, ErrNoObjectStore)
	}

	data, err := l.store.Get(ctx, loc.Bucket, loc.Key)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		l.logger.Warn("failed to fetch object", "bucket", loc.Bucket, "key", loc.Key, "err", err)
		return nil, fmt.Errorf("%w: %w", core.ErrSourceUnavailable, err)
	}
	return data, nil
}

func (l *Locator) fetchLocal(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		l.logger.Warn("failed to read file", "path", path, "err", err)
		return nil, fmt.Errorf("%w: %w", core.ErrSourceUnavailable, err)
	}
	return data, nil
}

package ocr

import (
	"context"
	"image"
	"log/slog"
	"sync"
)

// Factory builds a recognizer.
type Factory func(ctx context.Context) (Recognizer, error)

// Loader lazily builds a recognizer on first use and memoizes it. A failed
// build is returned as a *BackendLoadError and retried on the next call.
type Loader struct {
	name    string
	factory Factory

	mu  sync.Mutex
	rec Recognizer
}

// NewLoader creates a loader for the named backend.
func NewLoader(name string, factory Factory) *Loader {
	return &Loader{name: name, factory: factory}
}

// Name returns the backend name.
func (l *Loader) Name() string { return l.name }

// Get returns the memoized recognizer, building it if needed.
func (l *Loader) Get(ctx context.Context) (Recognizer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.rec != nil {
		return l.rec, nil
	}

	rec, err := l.factory(ctx)
	if err != nil {
		slog.Error("failed to load recognizer", "backend", l.name, "error", err)
		return nil, &BackendLoadError{Backend: l.name, Err: err}
	}
	slog.Info("recognizer loaded", "backend", l.name)
	l.rec = rec
	return rec, nil
}

// Recognize implements Recognizer by delegating to the loaded backend.
func (l *Loader) Recognize(ctx context.Context, img image.Image, langs []string) (Recognition, error) {
	rec, err := l.Get(ctx)
	if err != nil {
		return Recognition{}, err
	}
	return rec.Recognize(ctx, img, langs)
}

// Close releases the loaded backend, if any.
func (l *Loader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := l.rec
	l.rec = nil
	return closeIfCloser(rec)
}

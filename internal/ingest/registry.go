// Package ingest claims batches of pending station data files and hands
// them to the decoder registered for each file's format.
package ingest

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// DefaultDecoderName is used when an ingestion job does not name a format
const DefaultDecoderName = "TOA5"

// Decoder parses one acquired file and stores its readings. Implementations
// are registered once at startup and must be safe for concurrent use.
type Decoder interface {
	Decode(ctx context.Context, path string, stationID int, utcOffsetMinutes int, overrideOnConflict bool) error
}

// DecoderFunc adapts a plain function to the Decoder interface
type DecoderFunc func(ctx context.Context, path string, stationID int, utcOffsetMinutes int, overrideOnConflict bool) error

func (f DecoderFunc) Decode(ctx context.Context, path string, stationID int, utcOffsetMinutes int, overrideOnConflict bool) error {
	return f(ctx, path, stationID, utcOffsetMinutes, overrideOnConflict)
}

// Registry maps decoder names to implementations
type Registry struct {
	mu          sync.RWMutex
	decoders    map[string]Decoder
	defaultName string
}

func NewRegistry() *Registry {
	return &Registry{
		decoders:    make(map[string]Decoder),
		defaultName: DefaultDecoderName,
	}
}

// SetDefault overrides the format that empty decoder names resolve to
func (r *Registry) SetDefault(name string) {
	if name == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultName = name
}

// Register adds a decoder under the given name, replacing any previous
// registration
func (r *Registry) Register(name string, d Decoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[name] = d
}

// Resolve returns the decoder for name. An empty name resolves to
// DefaultDecoderName; an unknown name is a configuration error.
func (r *Registry) Resolve(name string) (Decoder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name == "" {
		name = r.defaultName
	}
	d, ok := r.decoders[name]
	if !ok {
		return nil, fmt.Errorf("no decoder registered for format %q", name)
	}
	return d, nil
}

// Names returns the registered decoder names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.decoders))
	for name := range r.decoders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Package source fetches raw guide payloads from configured upstreams. It
// is a byte-transport boundary: adapters never parse guide content, they
// only move (and when needed, decompress) bytes.
package source

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/afero"

	"epgcacher/config"
	"epgcacher/models"
)

// RawPayload is the result of one successful fetch.
type RawPayload struct {
	Source      string
	Body        []byte
	Version     models.SourceVersion
	NotModified bool // conditional fetch matched; Body is empty
}

// Adapter fetches raw bytes for one configured source.
type Adapter interface {
	Name() string
	// Fetch retrieves the source payload. prev carries the conditional
	// fetch state from the last successful cycle; adapters may use it to
	// avoid re-downloading unchanged data.
	Fetch(ctx context.Context, prev models.SourceVersion) (*RawPayload, error)
}

// New builds the adapter for a source config.
func New(cfg config.SourceConfig, client *http.Client, fs afero.Fs) (Adapter, error) {
	switch cfg.Kind {
	case config.SourceKindHTTP:
		return NewHTTPAdapter(cfg, client), nil
	case config.SourceKindFile:
		return NewFileAdapter(cfg, fs), nil
	default:
		return nil, fmt.Errorf("source %q: unknown kind %q", cfg.Name, cfg.Kind)
	}
}

package source

import (
	"context"
	"os"
	"time"

	"github.com/spf13/afero"

	"epgcacher/config"
	"epgcacher/models"
)

// FileAdapter reads a guide payload from the local filesystem. Useful for
// sources that are dropped into place by another process, and for tests.
type FileAdapter struct {
	name string
	path string
	fs   afero.Fs
}

// NewFileAdapter creates a file source adapter. A nil fs uses the OS
// filesystem.
func NewFileAdapter(cfg config.SourceConfig, fs afero.Fs) *FileAdapter {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &FileAdapter{name: cfg.Name, path: cfg.Path, fs: fs}
}

func (a *FileAdapter) Name() string { return a.name }

// Fetch reads the file. The modification time doubles as the conditional
// fetch token: an unchanged mtime short-circuits to NotModified.
func (a *FileAdapter) Fetch(ctx context.Context, prev models.SourceVersion) (*RawPayload, error) {
	if err := ctx.Err(); err != nil {
		return nil, &models.FetchError{Source: a.name, Kind: models.FetchTransient, Err: err}
	}

	info, err := a.fs.Stat(a.path)
	if err != nil {
		kind := models.FetchTransient
		if os.IsNotExist(err) {
			kind = models.FetchPermanent
		}
		return nil, &models.FetchError{Source: a.name, Kind: kind, Err: err}
	}

	mtime := info.ModTime().UTC().Format(time.RFC3339Nano)
	if prev.LastModified != "" && prev.LastModified == mtime {
		return &RawPayload{Source: a.name, Version: prev, NotModified: true}, nil
	}

	body, err := afero.ReadFile(a.fs, a.path)
	if err != nil {
		return nil, &models.FetchError{Source: a.name, Kind: models.FetchTransient, Err: err}
	}

	body, err = unwrapPayload(body)
	if err != nil {
		return nil, &models.FetchError{Source: a.name, Kind: models.FetchPermanent, Err: err}
	}

	return &RawPayload{
		Source: a.name,
		Body:   body,
		Version: models.SourceVersion{
			LastModified: mtime,
			FetchedAt:    time.Now().UTC(),
		},
	}, nil
}

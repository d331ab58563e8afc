package cache

import (
	"fmt"
	"log"
	"path/filepath"

	"github.com/spf13/afero"

	"epgcacher/models"
	"epgcacher/services/normalize"
)

const (
	guideFileName      = "epg.xml"
	guideRawIDFileName = "epg_unescaped.xml"
	guideOldFileName   = "epg_old.xml"
)

// Persister writes each published snapshot to disk as XMLTV so DVR
// frontends can consume the guide as a plain file. epg.xml carries the
// canonical safe channel ids, epg_unescaped.xml the upstream's original
// ids, and the previous guide file is kept as epg_old.xml.
type Persister struct {
	fs  afero.Fs
	dir string
}

// NewPersister creates a persister rooted at dir.
func NewPersister(fs afero.Fs, dir string) *Persister {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Persister{fs: fs, dir: dir}
}

// GuidePath returns the path of the published guide file.
func (p *Persister) GuidePath() string {
	return filepath.Join(p.dir, guideFileName)
}

// Write renders the snapshot and replaces the guide file via a temp file
// rename, backing up the prior file first. Readers of the file never see a
// partial write.
func (p *Persister) Write(snapshot *models.Snapshot) error {
	data, err := normalize.RenderXMLTV(snapshot, false)
	if err != nil {
		return &models.PublishError{Path: p.GuidePath(), Err: err}
	}

	if err := p.fs.MkdirAll(p.dir, 0o755); err != nil {
		return &models.PublishError{Path: p.dir, Err: err}
	}

	guidePath := p.GuidePath()
	if exists, _ := afero.Exists(p.fs, guidePath); exists {
		oldPath := filepath.Join(p.dir, guideOldFileName)
		if err := copyFile(p.fs, guidePath, oldPath); err != nil {
			// Losing the backup is not worth failing the publish over.
			log.Printf("[cache] backup of %s failed: %v", guidePath, err)
		}
	}

	if err := p.writeAtomic(guidePath, data); err != nil {
		return err
	}

	rawData, err := normalize.RenderXMLTV(snapshot, true)
	if err != nil {
		return &models.PublishError{Path: filepath.Join(p.dir, guideRawIDFileName), Err: err}
	}
	if err := p.writeAtomic(filepath.Join(p.dir, guideRawIDFileName), rawData); err != nil {
		return err
	}

	log.Printf("[cache] wrote generation %d to %s (%d bytes)", snapshot.GenerationID, guidePath, len(data))
	return nil
}

func (p *Persister) writeAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := afero.WriteFile(p.fs, tmpPath, data, 0o644); err != nil {
		return &models.PublishError{Path: path, Err: err}
	}
	if err := p.fs.Rename(tmpPath, path); err != nil {
		return &models.PublishError{Path: path, Err: err}
	}
	return nil
}

func copyFile(fs afero.Fs, src, dst string) error {
	data, err := afero.ReadFile(fs, src)
	if err != nil {
		return fmt.Errorf("read %s: %w", src, err)
	}
	if err := afero.WriteFile(fs, dst, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return nil
}

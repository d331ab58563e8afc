// Package mapping manages the channel mapping file that links guide
// channels to the channels of an artwork-only source.
package mapping

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/mozillazg/go-unidecode"
	"github.com/spf13/afero"

	"epgcacher/models"
)

var csvHeader = []string{"Guide_Channel_ID", "Icon_Channel_ID"}

// Entry is one guide-to-icon channel pairing.
type Entry struct {
	GuideChannel string `json:"guideChannel"`
	IconChannel  string `json:"iconChannel"`
}

// Stats summarizes the mapping file.
type Stats struct {
	Total  int `json:"total"`
	Mapped int `json:"mapped"`
}

// Store is the CSV-backed mapping store. Operators edit the same file by
// hand, so the format stays a two-column CSV with a header row.
type Store struct {
	fs   afero.Fs
	path string

	mu      sync.RWMutex
	entries []Entry
}

// NewStore creates a mapping store backed by path.
func NewStore(fs afero.Fs, path string) *Store {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Store{fs: fs, path: path}
}

// Load reads the mapping file. A missing file is created empty (header
// only) so operators can discover where to put their mappings.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := afero.ReadFile(s.fs, s.path)
	if os.IsNotExist(err) {
		s.entries = nil
		if err := s.saveLocked(); err != nil {
			return err
		}
		log.Printf("[mapping] created empty mapping file %s", s.path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read mapping file %s: %w", s.path, err)
	}

	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return fmt.Errorf("parse mapping file %s: %w", s.path, err)
	}

	var entries []Entry
	for i, record := range records {
		if i == 0 && len(record) > 0 && strings.EqualFold(record[0], csvHeader[0]) {
			continue
		}
		if len(record) < 2 {
			continue
		}
		guide := strings.TrimSpace(record[0])
		icon := strings.TrimSpace(record[1])
		if guide == "" {
			continue
		}
		entries = append(entries, Entry{GuideChannel: guide, IconChannel: icon})
	}

	s.entries = entries
	log.Printf("[mapping] loaded %d channel mappings from %s", len(entries), s.path)
	return nil
}

// List returns the mappings sorted by guide channel id.
func (s *Store) List() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	sort.Slice(out, func(i, j int) bool { return out[i].GuideChannel < out[j].GuideChannel })
	return out
}

// Map returns guide channel id -> icon channel id for entries with a
// non-empty icon side.
func (s *Store) Map() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.entries))
	for _, e := range s.entries {
		if e.IconChannel != "" {
			out[e.GuideChannel] = e.IconChannel
		}
	}
	return out
}

// Add inserts or updates a mapping and persists the file.
func (s *Store) Add(guideChannel, iconChannel string) error {
	guideChannel = strings.TrimSpace(guideChannel)
	iconChannel = strings.TrimSpace(iconChannel)
	if guideChannel == "" {
		return fmt.Errorf("guide channel id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	updated := false
	for i := range s.entries {
		if s.entries[i].GuideChannel == guideChannel {
			s.entries[i].IconChannel = iconChannel
			updated = true
			break
		}
	}
	if !updated {
		s.entries = append(s.entries, Entry{GuideChannel: guideChannel, IconChannel: iconChannel})
	}
	return s.saveLocked()
}

// Delete removes a mapping and persists the file. Returns false when the
// guide channel had no mapping.
func (s *Store) Delete(guideChannel string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.entries {
		if s.entries[i].GuideChannel == guideChannel {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return true, s.saveLocked()
		}
	}
	return false, nil
}

// Stats returns mapping counts.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := Stats{Total: len(s.entries)}
	for _, e := range s.entries {
		if e.IconChannel != "" {
			stats.Mapped++
		}
	}
	return stats
}

// Suggest proposes likely pairings between unmapped guide channels and
// icon source channels by comparing ASCII-folded display names.
func (s *Store) Suggest(guideChannels, iconChannels []models.Channel) []Entry {
	mapped := make(map[string]bool)
	s.mu.RLock()
	for _, e := range s.entries {
		mapped[e.GuideChannel] = true
	}
	s.mu.RUnlock()

	iconByName := make(map[string]string, len(iconChannels))
	for _, ch := range iconChannels {
		if key := foldName(ch.DisplayName); key != "" {
			if _, exists := iconByName[key]; !exists {
				iconByName[key] = ch.ID
			}
		}
	}

	var suggestions []Entry
	for _, ch := range guideChannels {
		if mapped[ch.ID] {
			continue
		}
		if iconID, ok := iconByName[foldName(ch.DisplayName)]; ok {
			suggestions = append(suggestions, Entry{GuideChannel: ch.ID, IconChannel: iconID})
		}
	}
	sort.Slice(suggestions, func(i, j int) bool { return suggestions[i].GuideChannel < suggestions[j].GuideChannel })
	return suggestions
}

// foldName reduces a display name to a comparable key: transliterated to
// ASCII, lowercased, alphanumerics only.
func foldName(name string) string {
	folded := strings.ToLower(unidecode.Unidecode(name))
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// saveLocked writes the CSV atomically. Caller holds s.mu.
func (s *Store) saveLocked() error {
	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create mapping dir: %w", err)
	}

	var sb strings.Builder
	w := csv.NewWriter(&sb)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("write mapping header: %w", err)
	}
	for _, e := range s.entries {
		if err := w.Write([]string{e.GuideChannel, e.IconChannel}); err != nil {
			return fmt.Errorf("write mapping row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush mapping file: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("write mapping file: %w", err)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace mapping file: %w", err)
	}
	return nil
}

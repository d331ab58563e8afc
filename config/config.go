package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"epgcacher/utils"
)

// Source kinds and roles.
const (
	SourceKindHTTP = "http"
	SourceKindFile = "file"

	// RoleGuide sources contribute channels and programmes.
	RoleGuide = "guide"
	// RoleIcons sources contribute programme artwork only, matched into the
	// guide through the channel mapping.
	RoleIcons = "icons"
)

// SourceConfig describes one upstream guide source.
type SourceConfig struct {
	Name           string `json:"name"`
	Kind           string `json:"kind"` // http | file
	URL            string `json:"url,omitempty"`
	Path           string `json:"path,omitempty"`
	Role           string `json:"role"` // guide | icons
	TimeoutSeconds int    `json:"timeoutSeconds,omitempty"`
}

// Timeout returns the per-fetch timeout for this source.
func (s SourceConfig) Timeout() time.Duration {
	if s.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// Settings is the full configuration of the EPG cacher.
type Settings struct {
	IntervalSeconds         int            `json:"intervalSeconds"`
	BackoffBaseSeconds      int            `json:"backoffBaseSeconds"`
	BackoffCeilingSeconds   int            `json:"backoffCeilingSeconds"`
	TimeToleranceMinutes    int            `json:"timeToleranceMinutes"`
	CarryForwardMaxAgeHours int            `json:"carryForwardMaxAgeHours"`
	OutputDir               string         `json:"outputDir"`
	DatabasePath            string         `json:"databasePath"`
	ListenAddr              string         `json:"listenAddr"`
	LogFile                 string         `json:"logFile"`
	Sources                 []SourceConfig `json:"sources"`
}

// DefaultSettings mirrors the deployment defaults: hourly refresh, ten
// minute merge tolerance, output under ./output.
func DefaultSettings() *Settings {
	return &Settings{
		IntervalSeconds:         3600,
		BackoffBaseSeconds:      30,
		BackoffCeilingSeconds:   0, // 0 means "use the interval"
		TimeToleranceMinutes:    10,
		CarryForwardMaxAgeHours: 24,
		OutputDir:               "output",
		DatabasePath:            "output/epg_cacher.db",
		ListenAddr:              ":8000",
		LogFile:                 "epg_cacher.log",
	}
}

// Interval returns the scheduler cadence.
func (s *Settings) Interval() time.Duration {
	if s.IntervalSeconds < 1 {
		return time.Hour
	}
	return time.Duration(s.IntervalSeconds) * time.Second
}

// BackoffBase returns the first retry delay after a failed cycle.
func (s *Settings) BackoffBase() time.Duration {
	if s.BackoffBaseSeconds < 1 {
		return 30 * time.Second
	}
	return time.Duration(s.BackoffBaseSeconds) * time.Second
}

// BackoffCeiling returns the maximum delay between failed cycles. Defaults
// to the configured interval so a down upstream is never polled faster than
// a healthy one is.
func (s *Settings) BackoffCeiling() time.Duration {
	if s.BackoffCeilingSeconds < 1 {
		return s.Interval()
	}
	return time.Duration(s.BackoffCeilingSeconds) * time.Second
}

// TimeTolerance returns the window within which two programme start times
// are treated as the same slot when merging.
func (s *Settings) TimeTolerance() time.Duration {
	if s.TimeToleranceMinutes < 0 {
		return 0
	}
	return time.Duration(s.TimeToleranceMinutes) * time.Minute
}

// CarryForwardMaxAge returns how long after its stop time a programme from
// the previous snapshot remains eligible for carry-forward.
func (s *Settings) CarryForwardMaxAge() time.Duration {
	if s.CarryForwardMaxAgeHours < 1 {
		return 24 * time.Hour
	}
	return time.Duration(s.CarryForwardMaxAgeHours) * time.Hour
}

// GuideSources returns the sources that contribute channels and programmes,
// in configured order. Order matters: later sources win overlap ties.
func (s *Settings) GuideSources() []SourceConfig {
	var out []SourceConfig
	for _, src := range s.Sources {
		if src.Role != RoleIcons {
			out = append(out, src)
		}
	}
	return out
}

// IconSources returns the artwork-only sources.
func (s *Settings) IconSources() []SourceConfig {
	var out []SourceConfig
	for _, src := range s.Sources {
		if src.Role == RoleIcons {
			out = append(out, src)
		}
	}
	return out
}

// Validate checks the settings for configuration errors.
func (s *Settings) Validate() error {
	if len(s.GuideSources()) == 0 {
		return fmt.Errorf("at least one guide source is required (set EPG_URL or configure sources)")
	}
	seen := make(map[string]bool)
	for _, src := range s.Sources {
		if src.Name == "" {
			return fmt.Errorf("source with empty name")
		}
		if seen[src.Name] {
			return fmt.Errorf("duplicate source name %q", src.Name)
		}
		seen[src.Name] = true
		switch src.Kind {
		case SourceKindHTTP:
			if src.URL == "" {
				return fmt.Errorf("source %q: http source requires a url", src.Name)
			}
			if err := utils.ValidateSourceURL(src.URL); err != nil {
				return fmt.Errorf("source %q: %w", src.Name, err)
			}
		case SourceKindFile:
			if src.Path == "" {
				return fmt.Errorf("source %q: file source requires a path", src.Name)
			}
		default:
			return fmt.Errorf("source %q: unknown kind %q", src.Name, src.Kind)
		}
	}
	return nil
}

// applyEnv overlays the deployment environment onto loaded settings. The
// INTERVAL variable is the canonical external knob; EPG_URL and EPG2_URL
// configure the primary guide source and the artwork source respectively.
func (s *Settings) applyEnv() {
	if v := os.Getenv("INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			s.IntervalSeconds = n
		}
	}
	if v := os.Getenv("TIME_TOLERANCE_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			s.TimeToleranceMinutes = n
		}
	}
	if v := os.Getenv("OUTPUT_DIR"); v != "" {
		s.OutputDir = v
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		s.ListenAddr = v
	}
	if v := os.Getenv("EPG_URL"); v != "" {
		s.upsertSource(SourceConfig{Name: "epg1", Kind: SourceKindHTTP, URL: v, Role: RoleGuide})
	}
	if v := os.Getenv("EPG2_URL"); v != "" {
		s.upsertSource(SourceConfig{Name: "epg2", Kind: SourceKindHTTP, URL: v, Role: RoleIcons})
	}
}

func (s *Settings) upsertSource(src SourceConfig) {
	for i := range s.Sources {
		if s.Sources[i].Name == src.Name {
			s.Sources[i] = src
			return
		}
	}
	s.Sources = append(s.Sources, src)
}

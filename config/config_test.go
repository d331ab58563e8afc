package config

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	require.Equal(t, time.Hour, s.Interval())
	require.Equal(t, 30*time.Second, s.BackoffBase())
	require.Equal(t, time.Hour, s.BackoffCeiling(), "ceiling should default to the interval")
	require.Equal(t, 10*time.Minute, s.TimeTolerance())
	require.Equal(t, 24*time.Hour, s.CarryForwardMaxAge())
}

func TestManager_LoadMissingFileUsesDefaults(t *testing.T) {
	manager := NewManager(afero.NewMemMapFs(), "config.json")
	settings, err := manager.Load()
	require.NoError(t, err)
	require.Equal(t, 3600, settings.IntervalSeconds)
}

func TestManager_SaveAndLoadRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	manager := NewManager(fs, "data/config.json")

	settings := DefaultSettings()
	settings.IntervalSeconds = 900
	settings.Sources = []SourceConfig{
		{Name: "epg1", Kind: SourceKindHTTP, URL: "http://example.com/guide.xml", Role: RoleGuide},
	}
	require.NoError(t, manager.Save(settings))

	loaded, err := manager.Load()
	require.NoError(t, err)
	require.Equal(t, 900, loaded.IntervalSeconds)
	require.Len(t, loaded.Sources, 1)
	require.Equal(t, "epg1", loaded.Sources[0].Name)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("INTERVAL", "600")
	t.Setenv("EPG_URL", "http://example.com/one.xml")
	t.Setenv("EPG2_URL", "http://example.com/two.xml")

	settings, err := NewManager(afero.NewMemMapFs(), "config.json").Load()
	require.NoError(t, err)

	require.Equal(t, 600, settings.IntervalSeconds)
	require.Len(t, settings.GuideSources(), 1)
	require.Len(t, settings.IconSources(), 1)
	require.Equal(t, "http://example.com/one.xml", settings.GuideSources()[0].URL)
	require.Equal(t, RoleIcons, settings.IconSources()[0].Role)
	require.NoError(t, settings.Validate())
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Settings)
		wantErr bool
	}{
		{
			"valid http source",
			func(s *Settings) {
				s.Sources = []SourceConfig{{Name: "a", Kind: SourceKindHTTP, URL: "http://x", Role: RoleGuide}}
			},
			false,
		},
		{
			"no guide sources",
			func(s *Settings) {
				s.Sources = []SourceConfig{{Name: "a", Kind: SourceKindHTTP, URL: "http://x", Role: RoleIcons}}
			},
			true,
		},
		{
			"duplicate names",
			func(s *Settings) {
				s.Sources = []SourceConfig{
					{Name: "a", Kind: SourceKindHTTP, URL: "http://x", Role: RoleGuide},
					{Name: "a", Kind: SourceKindHTTP, URL: "http://y", Role: RoleGuide},
				}
			},
			true,
		},
		{
			"http source without url",
			func(s *Settings) {
				s.Sources = []SourceConfig{{Name: "a", Kind: SourceKindHTTP, Role: RoleGuide}}
			},
			true,
		},
		{
			"file source without path",
			func(s *Settings) {
				s.Sources = []SourceConfig{{Name: "a", Kind: SourceKindFile, Role: RoleGuide}}
			},
			true,
		},
		{
			"unknown kind",
			func(s *Settings) {
				s.Sources = []SourceConfig{{Name: "a", Kind: "ftp", URL: "ftp://x", Role: RoleGuide}}
			},
			true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := DefaultSettings()
			tc.mutate(s)
			err := s.Validate()
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestSourceOrderPreserved(t *testing.T) {
	s := DefaultSettings()
	s.Sources = []SourceConfig{
		{Name: "first", Kind: SourceKindHTTP, URL: "http://a", Role: RoleGuide},
		{Name: "art", Kind: SourceKindHTTP, URL: "http://b", Role: RoleIcons},
		{Name: "second", Kind: SourceKindHTTP, URL: "http://c", Role: RoleGuide},
	}

	guides := s.GuideSources()
	require.Len(t, guides, 2)
	require.Equal(t, "first", guides[0].Name)
	require.Equal(t, "second", guides[1].Name)
}

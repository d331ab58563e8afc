package normalize

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"epgcacher/models"
)

func TestRenderXMLTV_RoundTrip(t *testing.T) {
	start := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	snapshot := &models.Snapshot{
		GenerationID: 7,
		Channels: []models.Channel{
			{ID: "movies.hd", RawID: "Movies HD", DisplayName: "Movies HD", IconURL: "http://img.example/movies.png"},
			{ID: "newsone", RawID: "News One", DisplayName: "News One"},
		},
		Programmes: map[string][]models.Programme{
			"movies.hd": {{
				ChannelID:   "movies.hd",
				Start:       start,
				Stop:        start.Add(2 * time.Hour),
				Title:       "Feature Film",
				Description: "A long one.",
				Category:    "Movie",
				Icons:       []string{"http://img.example/film.jpg"},
			}},
			"newsone": {{
				ChannelID: "newsone",
				Start:     start,
				Stop:      start.Add(time.Hour),
				Title:     "Evening News",
			}},
		},
	}

	data, err := RenderXMLTV(snapshot, false)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}

	result, err := Normalize(data, "roundtrip")
	if err != nil {
		t.Fatalf("re-parsing rendered guide failed: %v", err)
	}
	if len(result.Channels) != 2 {
		t.Fatalf("expected 2 channels after round trip, got %d", len(result.Channels))
	}
	if len(result.Programmes) != 2 {
		t.Fatalf("expected 2 programmes after round trip, got %d", len(result.Programmes))
	}
	if result.Skipped != 0 {
		t.Errorf("round trip skipped %d entries", result.Skipped)
	}
	for _, p := range result.Programmes {
		if p.ChannelID == "movies.hd" {
			if !p.Start.Equal(start) || !p.Stop.Equal(start.Add(2*time.Hour)) {
				t.Errorf("programme times changed: start=%v stop=%v", p.Start, p.Stop)
			}
			if p.Title != "Feature Film" || p.Category != "Movie" {
				t.Errorf("programme fields changed: %+v", p)
			}
			if len(p.Icons) != 1 || p.Icons[0] != "http://img.example/film.jpg" {
				t.Errorf("programme icon lost: %v", p.Icons)
			}
		}
	}
}

func TestNormalizePipeline_ByteIdenticalReruns(t *testing.T) {
	const guide = `<tv>
  <channel id="News One"><display-name>News One</display-name></channel>
  <channel id="moviestwo"><display-name>Movies Two</display-name></channel>
  <programme start="20260301200000 +0000" stop="20260301210000 +0000" channel="News One">
    <title>Evening News</title>
  </programme>
  <programme start="20260301203000 +0000" stop="20260301213000 +0000" channel="News One">
    <title>Late Bulletin</title>
  </programme>
  <programme start="20260301200000 +0000" stop="20260301220000 +0000" channel="moviestwo">
    <title>Feature Film</title>
  </programme>
</tv>`
	generated := time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC)

	render := func() []byte {
		t.Helper()
		res, err := Normalize([]byte(guide), "alpha")
		if err != nil {
			t.Fatalf("normalize failed: %v", err)
		}
		channels, programmes := MergeSources([]*Result{res})
		snap := &models.Snapshot{
			GenerationID: 1,
			GeneratedAt:  generated,
			Channels:     channels,
			Programmes:   programmes,
		}
		data, err := RenderXMLTV(snap, false)
		if err != nil {
			t.Fatalf("render failed: %v", err)
		}
		return data
	}

	first := render()
	for i := 0; i < 5; i++ {
		if again := render(); !bytes.Equal(first, again) {
			t.Fatalf("run %d produced different bytes for the same payload", i+1)
		}
	}
}

func TestRenderXMLTV_RawIDs(t *testing.T) {
	snapshot := &models.Snapshot{
		Channels: []models.Channel{
			{ID: "newsone", RawID: "News One", DisplayName: "News One"},
		},
		Programmes: map[string][]models.Programme{
			"newsone": {{
				ChannelID: "newsone",
				Start:     time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC),
				Stop:      time.Date(2026, 3, 1, 21, 0, 0, 0, time.UTC),
				Title:     "Evening News",
			}},
		},
	}

	safe, err := RenderXMLTV(snapshot, false)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if !strings.Contains(string(safe), `id="newsone"`) || strings.Contains(string(safe), `id="News One"`) {
		t.Error("safe rendering should use the canonical channel id")
	}

	raw, err := RenderXMLTV(snapshot, true)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if !strings.Contains(string(raw), `id="News One"`) || !strings.Contains(string(raw), `channel="News One"`) {
		t.Error("raw rendering should use the upstream channel id on channels and programmes")
	}
}

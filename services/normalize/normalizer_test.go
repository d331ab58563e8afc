package normalize

import (
	"strings"
	"testing"
	"time"
)

const sampleGuide = `<?xml version="1.0" encoding="UTF-8"?>
<tv generator-info-name="test">
  <channel id="news.one">
    <display-name>News One</display-name>
    <icon src="http://example.com/news.png"/>
  </channel>
  <channel id="movies.two">
    <display-name>Movies Two</display-name>
  </channel>
  <programme start="20260115180000 +0000" stop="20260115190000 +0000" channel="news.one">
    <title>Evening News</title>
    <desc>Headlines and weather.</desc>
    <category>News</category>
  </programme>
  <programme start="20260115190000 +0000" stop="20260115210000 +0000" channel="movies.two">
    <title>Feature Film</title>
    <icon src="http://example.com/film.jpg"/>
  </programme>
</tv>`

func TestNormalize_ParsesChannelsAndProgrammes(t *testing.T) {
	res, err := Normalize([]byte(sampleGuide), "primary")
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	if len(res.Channels) != 2 {
		t.Fatalf("expected 2 channels, got %d", len(res.Channels))
	}
	if res.Channels[0].ID != "movies.two" || res.Channels[1].ID != "news.one" {
		t.Errorf("channels not sorted by id: %v", res.Channels)
	}
	if res.Channels[1].IconURL != "http://example.com/news.png" {
		t.Errorf("expected channel icon, got %q", res.Channels[1].IconURL)
	}

	if len(res.Programmes) != 2 {
		t.Fatalf("expected 2 programmes, got %d", len(res.Programmes))
	}
	prog := res.Programmes[0]
	if prog.Title != "Evening News" {
		t.Errorf("expected title 'Evening News', got %q", prog.Title)
	}
	want := time.Date(2026, 1, 15, 18, 0, 0, 0, time.UTC)
	if !prog.Start.Equal(want) {
		t.Errorf("expected start %v, got %v", want, prog.Start)
	}
	if prog.Source != "primary" {
		t.Errorf("expected source 'primary', got %q", prog.Source)
	}
}

func TestNormalize_TimezoneOffsetsNormalizedToUTC(t *testing.T) {
	guide := `<tv>
  <programme start="20260115200000 +0200" stop="20260115210000 +0200" channel="c1">
    <title>Offset Show</title>
  </programme>
</tv>`
	res, err := Normalize([]byte(guide), "src")
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	want := time.Date(2026, 1, 15, 18, 0, 0, 0, time.UTC)
	if !res.Programmes[0].Start.Equal(want) {
		t.Errorf("expected start %v, got %v", want, res.Programmes[0].Start)
	}
	if res.Programmes[0].Start.Location() != time.UTC {
		t.Errorf("expected UTC location, got %v", res.Programmes[0].Start.Location())
	}
}

func TestNormalize_SkipsMalformedEntries(t *testing.T) {
	guide := `<tv>
  <channel id=""><display-name>No ID</display-name></channel>
  <programme start="20260115180000 +0000" stop="20260115190000 +0000" channel="c1">
    <title>Good Show</title>
  </programme>
  <programme start="20260115180000 +0000" stop="20260115190000 +0000" channel="c1">
    <title></title>
  </programme>
  <programme start="garbage" stop="20260115190000 +0000" channel="c1">
    <title>Bad Start</title>
  </programme>
  <programme start="20260115200000 +0000" stop="20260115190000 +0000" channel="c1">
    <title>Inverted Range</title>
  </programme>
</tv>`
	res, err := Normalize([]byte(guide), "src")
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(res.Programmes) != 1 {
		t.Fatalf("expected 1 surviving programme, got %d", len(res.Programmes))
	}
	if res.Programmes[0].Title != "Good Show" {
		t.Errorf("wrong survivor: %q", res.Programmes[0].Title)
	}
	if res.Skipped != 4 {
		t.Errorf("expected 4 skipped entries, got %d", res.Skipped)
	}
}

func TestNormalize_SynthesizesChannelFromProgramme(t *testing.T) {
	guide := `<tv>
  <programme start="20260115180000 +0000" stop="20260115190000 +0000" channel="orphan">
    <title>Orphan Show</title>
  </programme>
</tv>`
	res, err := Normalize([]byte(guide), "src")
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(res.Channels) != 1 || res.Channels[0].ID != "orphan" {
		t.Fatalf("expected synthesized channel 'orphan', got %v", res.Channels)
	}
}

func TestNormalize_RejectsNonGuidePayload(t *testing.T) {
	cases := []struct {
		name    string
		payload string
	}{
		{"html page", "<html><body>Not a guide</body></html>"},
		{"empty document", "<tv></tv>"},
		{"truncated garbage", "<<<>>>"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Normalize([]byte(tc.payload), "src"); err == nil {
				t.Fatal("expected a schema error")
			}
		})
	}
}

func TestNormalize_SurvivesControlCharacters(t *testing.T) {
	guide := "<tv><programme start=\"20260115180000 +0000\" stop=\"20260115190000 +0000\" channel=\"c1\"><title>Show \x08 Time</title></programme></tv>"
	res, err := Normalize([]byte(guide), "src")
	if err != nil {
		t.Fatalf("Normalize failed on control character: %v", err)
	}
	if len(res.Programmes) != 1 {
		t.Fatalf("expected 1 programme, got %d", len(res.Programmes))
	}
	if strings.Contains(res.Programmes[0].Title, "\x08") {
		t.Error("control character survived sanitization")
	}
}

func TestNormalize_DeduplicatesChannels(t *testing.T) {
	guide := `<tv>
  <channel id="c1"><display-name>First</display-name></channel>
  <channel id="c1"><display-name>Duplicate</display-name></channel>
  <programme start="20260115180000 +0000" stop="20260115190000 +0000" channel="c1">
    <title>Show</title>
  </programme>
</tv>`
	res, err := Normalize([]byte(guide), "src")
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(res.Channels) != 1 {
		t.Fatalf("expected 1 channel after dedupe, got %d", len(res.Channels))
	}
	if res.Channels[0].DisplayName != "First" {
		t.Errorf("expected first occurrence to win, got %q", res.Channels[0].DisplayName)
	}
}

package normalize

import (
	"testing"
	"time"

	"epgcacher/models"
)

func iconResult(channel string, start time.Time, icons ...string) *Result {
	return &Result{
		Source: "artwork",
		Programmes: []models.Programme{{
			ChannelID: channel,
			Start:     start,
			Stop:      start.Add(time.Hour),
			Title:     "ignored",
			Icons:     icons,
			Source:    "artwork",
		}},
	}
}

func TestEnrichIcons_AttachesWithinTolerance(t *testing.T) {
	start := at(18, 0)
	programmes := map[string][]models.Programme{
		"newsone": {mkProg("newsone", "Evening News", start, start.Add(time.Hour), "alpha")},
	}
	icons := []*Result{iconResult("art.news", start.Add(5*time.Minute), "http://example.com/news.jpg")}
	mapping := map[string]string{"newsone": "art.news"}

	enriched := EnrichIcons(programmes, icons, mapping, 10*time.Minute)
	if enriched != 1 {
		t.Fatalf("expected 1 enriched programme, got %d", enriched)
	}
	got := programmes["newsone"][0].Icons
	if len(got) != 1 || got[0] != "http://example.com/news.jpg" {
		t.Errorf("icons not attached: %v", got)
	}
}

func TestEnrichIcons_OutsideToleranceSkipped(t *testing.T) {
	start := at(18, 0)
	programmes := map[string][]models.Programme{
		"newsone": {mkProg("newsone", "Evening News", start, start.Add(time.Hour), "alpha")},
	}
	icons := []*Result{iconResult("art.news", start.Add(30*time.Minute), "http://example.com/news.jpg")}
	mapping := map[string]string{"newsone": "art.news"}

	if enriched := EnrichIcons(programmes, icons, mapping, 10*time.Minute); enriched != 0 {
		t.Fatalf("expected no enrichment outside tolerance, got %d", enriched)
	}
}

func TestEnrichIcons_ExistingIconsUntouched(t *testing.T) {
	start := at(18, 0)
	prog := mkProg("newsone", "Evening News", start, start.Add(time.Hour), "alpha")
	prog.Icons = []string{"http://example.com/original.png"}
	programmes := map[string][]models.Programme{"newsone": {prog}}
	icons := []*Result{iconResult("art.news", start, "http://example.com/override.jpg")}
	mapping := map[string]string{"newsone": "art.news"}

	EnrichIcons(programmes, icons, mapping, 10*time.Minute)
	got := programmes["newsone"][0].Icons
	if len(got) != 1 || got[0] != "http://example.com/original.png" {
		t.Errorf("existing icons were replaced: %v", got)
	}
}

func TestEnrichIcons_MappingMayUseRawIconID(t *testing.T) {
	start := at(18, 0)
	programmes := map[string][]models.Programme{
		"newsone": {mkProg("newsone", "Evening News", start, start.Add(time.Hour), "alpha")},
	}
	// The icon source uses an id that needs canonicalization; the mapping
	// file refers to it by its raw form.
	icons := []*Result{iconResult("Art News%20HD", start, "http://example.com/news.jpg")}
	mapping := map[string]string{"newsone": SafeChannelID("Art News%20HD")}

	if enriched := EnrichIcons(programmes, icons, mapping, 10*time.Minute); enriched != 1 {
		t.Fatalf("expected enrichment via safe icon id, got %d", enriched)
	}
}

func TestEnrichIcons_NoMappingNoWork(t *testing.T) {
	programmes := map[string][]models.Programme{
		"newsone": {mkProg("newsone", "Evening News", at(18, 0), at(19, 0), "alpha")},
	}
	icons := []*Result{iconResult("art.news", at(18, 0), "http://example.com/news.jpg")}

	if enriched := EnrichIcons(programmes, icons, nil, 10*time.Minute); enriched != 0 {
		t.Fatalf("expected no enrichment without a mapping, got %d", enriched)
	}
}

package normalize

import (
	"log"
	"time"

	"epgcacher/models"
)

// EnrichIcons copies programme artwork from icon-only sources into the
// merged guide. mapping maps a guide channel id (safe form) to the icon
// source's channel id; a programme matches when its start time is within
// tolerance of the icon source's entry. Programmes that already carry icons
// are left alone. Returns the number of programmes enriched.
func EnrichIcons(programmes map[string][]models.Programme, iconResults []*Result, mapping map[string]string, tolerance time.Duration) int {
	if len(iconResults) == 0 || len(mapping) == 0 {
		return 0
	}

	// Index icon-source programmes by channel id, raw and safe, so the
	// mapping file can use either form.
	iconsByChannel := make(map[string][]models.Programme)
	for _, res := range iconResults {
		for _, prog := range res.Programmes {
			if len(prog.Icons) == 0 {
				continue
			}
			iconsByChannel[prog.ChannelID] = append(iconsByChannel[prog.ChannelID], prog)
			if safe := SafeChannelID(prog.ChannelID); safe != prog.ChannelID {
				iconsByChannel[safe] = append(iconsByChannel[safe], prog)
			}
		}
	}
	if len(iconsByChannel) == 0 {
		return 0
	}

	enriched := 0
	for guideChannel, iconChannel := range mapping {
		if iconChannel == "" {
			continue
		}
		sourceProgs := iconsByChannel[iconChannel]
		if len(sourceProgs) == 0 {
			continue
		}
		guideProgs := programmes[SafeChannelID(guideChannel)]
		for i := range guideProgs {
			if len(guideProgs[i].Icons) > 0 {
				continue
			}
			for _, iconProg := range sourceProgs {
				diff := guideProgs[i].Start.Sub(iconProg.Start)
				if diff < 0 {
					diff = -diff
				}
				if diff <= tolerance {
					guideProgs[i].Icons = append([]string(nil), iconProg.Icons...)
					enriched++
					break
				}
			}
		}
	}

	if enriched > 0 {
		log.Printf("[normalize] added artwork to %d programmes", enriched)
	}
	return enriched
}

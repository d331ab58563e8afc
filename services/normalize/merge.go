package normalize

import (
	"sort"
	"time"

	"epgcacher/models"
)

// MergeSources combines per-source normalizer results into a single
// candidate guide. results must be in configured source order: when two
// sources claim overlapping slots on the same channel, the most recently
// listed source wins, then the longer programme, then the first occurrence.
// Channel ids are canonicalized to their DVR-safe form here; everything
// downstream of the merge sees safe ids only.
func MergeSources(results []*Result) ([]models.Channel, map[string][]models.Programme) {
	channelsByID := make(map[string]models.Channel)
	candidates := make(map[string][]models.Programme)
	rank := make(map[string]int, len(results))

	for i, res := range results {
		rank[res.Source] = i

		for _, ch := range res.Channels {
			safe := SafeChannelID(ch.ID)
			if safe == "" {
				continue
			}
			merged := ch
			merged.ID = safe
			merged.RawID = ch.ID
			if existing, ok := channelsByID[safe]; ok {
				// Later source wins, but never at the cost of losing
				// a display name or icon the earlier one provided.
				if merged.DisplayName == "" {
					merged.DisplayName = existing.DisplayName
				}
				if merged.IconURL == "" {
					merged.IconURL = existing.IconURL
				}
			}
			channelsByID[safe] = merged
		}

		for _, prog := range res.Programmes {
			safe := SafeChannelID(prog.ChannelID)
			if safe == "" {
				continue
			}
			prog.ChannelID = safe
			candidates[safe] = append(candidates[safe], prog)
		}
	}

	channels := make([]models.Channel, 0, len(channelsByID))
	for _, ch := range channelsByID {
		channels = append(channels, ch)
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i].ID < channels[j].ID })

	programmes := make(map[string][]models.Programme, len(candidates))
	for id, progs := range candidates {
		programmes[id] = resolveOverlaps(progs, rank)
	}
	return channels, programmes
}

// resolveOverlaps deduplicates one channel's candidate programmes and
// resolves overlapping time ranges with the deterministic tie-break.
// The result is sorted ascending by start time and non-overlapping.
func resolveOverlaps(progs []models.Programme, rank map[string]int) []models.Programme {
	type candidate struct {
		prog  models.Programme
		order int
	}

	seen := make(map[string]bool, len(progs))
	candidates := make([]candidate, 0, len(progs))
	for i, p := range progs {
		key := p.Start.Format(time.RFC3339) + "|" + p.Stop.Format(time.RFC3339) + "|" + p.Title
		if seen[key] {
			continue
		}
		seen[key] = true
		candidates = append(candidates, candidate{prog: p, order: i})
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if ra, rb := rank[a.prog.Source], rank[b.prog.Source]; ra != rb {
			return ra > rb // most recently listed source first
		}
		if da, db := a.prog.Duration(), b.prog.Duration(); da != db {
			return da > db // longer programme first
		}
		return a.order < b.order // first occurrence first
	})

	var accepted []models.Programme
	for _, c := range candidates {
		conflict := false
		for _, kept := range accepted {
			if c.prog.Start.Before(kept.Stop) && c.prog.Stop.After(kept.Start) {
				conflict = true
				break
			}
		}
		if !conflict {
			accepted = append(accepted, c.prog)
		}
	}

	sort.Slice(accepted, func(i, j int) bool { return accepted[i].Start.Before(accepted[j].Start) })
	return accepted
}

// CarryForward merges channels and programmes from the previous snapshot
// that the new cycle did not supply: channels absent from the new data, and
// programmes that do not overlap anything new on their channel (within
// tolerance) and whose stop time is no older than maxAge. Upstreams
// routinely drop near-past entries a DVR still needs for in-progress
// recordings.
func CarryForward(prev *models.Snapshot, channels []models.Channel, programmes map[string][]models.Programme, tolerance, maxAge time.Duration, now time.Time) ([]models.Channel, int) {
	if prev == nil {
		return channels, 0
	}

	newChannelIDs := make(map[string]bool, len(channels))
	for _, ch := range channels {
		newChannelIDs[ch.ID] = true
	}
	for _, ch := range prev.Channels {
		if !newChannelIDs[ch.ID] {
			newChannelIDs[ch.ID] = true
			channels = append(channels, ch)
		}
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i].ID < channels[j].ID })

	cutoff := now.Add(-maxAge)
	carried := 0

	for channelID, oldProgs := range prev.Programmes {
		fresh := programmes[channelID]
		changed := false
		for _, old := range oldProgs {
			if old.Stop.Before(cutoff) {
				continue
			}
			if overlapsAny(old, fresh, tolerance) {
				continue
			}
			fresh = append(fresh, old)
			carried++
			changed = true
		}
		if changed {
			sort.Slice(fresh, func(i, j int) bool { return fresh[i].Start.Before(fresh[j].Start) })
			programmes[channelID] = fresh
		}
	}
	return channels, carried
}

// overlapsAny reports whether prog overlaps any of progs when ranges are
// widened by tolerance on both sides.
func overlapsAny(prog models.Programme, progs []models.Programme, tolerance time.Duration) bool {
	for _, other := range progs {
		if !prog.Start.After(other.Stop.Add(tolerance)) && !prog.Stop.Add(tolerance).Before(other.Start) {
			return true
		}
	}
	return false
}

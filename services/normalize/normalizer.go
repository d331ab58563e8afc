// Package normalize turns raw guide payloads into canonical channel and
// programme records: parsing, sanitizing, deduplicating and resolving
// overlapping time ranges deterministically.
package normalize

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"epgcacher/models"
)

// Result is the normalized contribution of one source for one cycle.
type Result struct {
	Source     string
	Channels   []models.Channel
	Programmes []models.Programme
	Skipped    int
	Version    models.SourceVersion
}

// Normalize parses one source payload. A payload that is not a guide
// document at the top level fails with a schema error; individually
// malformed entries are dropped and counted instead.
func Normalize(payload []byte, sourceName string) (*Result, error) {
	doc, err := decodeXMLTV(sanitizeXML(payload))
	if err != nil {
		return nil, &models.ParseError{Source: sourceName, Kind: models.SchemaInvalid, Err: err}
	}
	if len(doc.Channels) == 0 && len(doc.Programmes) == 0 {
		return nil, &models.ParseError{
			Source: sourceName,
			Kind:   models.SchemaInvalid,
			Err:    fmt.Errorf("guide document contains no channels or programmes"),
		}
	}

	res := &Result{Source: sourceName}
	seenChannels := make(map[string]bool)

	for _, xc := range doc.Channels {
		id := strings.TrimSpace(xc.ID)
		if id == "" {
			res.Skipped++
			continue
		}
		if seenChannels[id] {
			continue
		}
		seenChannels[id] = true

		ch := models.Channel{
			ID:          id,
			DisplayName: strings.TrimSpace(xc.DisplayName),
			Source:      sourceName,
		}
		if len(xc.Icons) > 0 {
			ch.IconURL = strings.TrimSpace(xc.Icons[0].Src)
		}
		res.Channels = append(res.Channels, ch)
	}

	for _, xp := range doc.Programmes {
		prog, ok := normalizeProgramme(xp, sourceName)
		if !ok {
			res.Skipped++
			continue
		}
		// Some providers list channels only through programmes.
		if !seenChannels[prog.ChannelID] {
			seenChannels[prog.ChannelID] = true
			res.Channels = append(res.Channels, models.Channel{
				ID:     prog.ChannelID,
				Source: sourceName,
			})
		}
		res.Programmes = append(res.Programmes, prog)
	}

	if res.Skipped > 0 {
		log.Printf("[normalize] %s: skipped %d malformed entries", sourceName, res.Skipped)
	}

	sort.Slice(res.Channels, func(i, j int) bool { return res.Channels[i].ID < res.Channels[j].ID })
	return res, nil
}

// normalizeProgramme validates one programme entry. Missing title, missing
// channel and inverted or unparseable time ranges all disqualify the entry.
func normalizeProgramme(xp xmltvProgramme, sourceName string) (models.Programme, bool) {
	channelID := strings.TrimSpace(xp.Channel)
	title := strings.TrimSpace(xp.Title)
	if channelID == "" || title == "" {
		return models.Programme{}, false
	}

	start, err := parseXMLTVTime(xp.Start)
	if err != nil {
		return models.Programme{}, false
	}
	stop, err := parseXMLTVTime(xp.Stop)
	if err != nil {
		return models.Programme{}, false
	}
	if !start.Before(stop) {
		return models.Programme{}, false
	}

	prog := models.Programme{
		ChannelID:   channelID,
		Start:       start,
		Stop:        stop,
		Title:       title,
		Description: strings.TrimSpace(xp.Description),
		Category:    strings.TrimSpace(xp.Category),
		Source:      sourceName,
	}
	for _, icon := range xp.Icons {
		if src := strings.TrimSpace(icon.Src); src != "" {
			prog.Icons = append(prog.Icons, src)
		}
	}
	return prog, true
}

// sanitizeXML replaces characters outside the XML 1.0 valid range with
// spaces so one stray control byte does not fail an entire payload.
func sanitizeXML(data []byte) []byte {
	text := strings.ToValidUTF8(string(data), " ")
	sanitized := strings.Map(func(r rune) rune {
		switch {
		case r == 0x09 || r == 0x0A || r == 0x0D:
			return r
		case r >= 0x20 && r <= 0xD7FF:
			return r
		case r >= 0xE000 && r <= 0xFFFD:
			return r
		case r >= 0x10000 && r <= 0x10FFFF:
			return r
		default:
			return ' '
		}
	}, text)
	return []byte(sanitized)
}

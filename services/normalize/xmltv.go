package normalize

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"epgcacher/models"
)

// xmltvTimeLayout is the XMLTV standard timestamp format.
const xmltvTimeLayout = "20060102150405 -0700"

// Fallback layouts seen in the wild from lenient providers.
var xmltvTimeFallbacks = []string{
	"20060102150405",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z",
}

// xmltvDocument is the wire representation of an XMLTV guide file.
type xmltvDocument struct {
	XMLName    xml.Name         `xml:"tv"`
	Generator  string           `xml:"generator-info-name,attr,omitempty"`
	Channels   []xmltvChannel   `xml:"channel"`
	Programmes []xmltvProgramme `xml:"programme"`
}

type xmltvChannel struct {
	ID          string      `xml:"id,attr"`
	DisplayName string      `xml:"display-name"`
	Icons       []xmltvIcon `xml:"icon"`
}

type xmltvProgramme struct {
	Channel     string      `xml:"channel,attr"`
	Start       string      `xml:"start,attr"`
	Stop        string      `xml:"stop,attr"`
	Title       string      `xml:"title"`
	Description string      `xml:"desc,omitempty"`
	Category    string      `xml:"category,omitempty"`
	Icons       []xmltvIcon `xml:"icon"`
}

type xmltvIcon struct {
	Src    string `xml:"src,attr"`
	Width  string `xml:"width,attr,omitempty"`
	Height string `xml:"height,attr,omitempty"`
}

// decodeXMLTV parses a sanitized payload into the wire document. Content in
// legacy encodings is transcoded through the declared charset.
func decodeXMLTV(data []byte) (*xmltvDocument, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = charset.NewReaderLabel
	dec.Strict = false

	var doc xmltvDocument
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode xmltv: %w", err)
	}
	return &doc, nil
}

// parseXMLTVTime parses an XMLTV timestamp, trying the standard layout
// first and a few tolerant fallbacks after. The result is normalized to UTC;
// layouts without a zone are taken as UTC.
func parseXMLTVTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if t, err := time.Parse(xmltvTimeLayout, value); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range xmltvTimeFallbacks {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", value)
}

// formatXMLTVTime renders a UTC instant in the standard XMLTV layout.
func formatXMLTVTime(t time.Time) string {
	return t.UTC().Format(xmltvTimeLayout)
}

// RenderXMLTV serializes a snapshot back into an XMLTV document. Snapshot
// ids are the canonical DVR-safe form; with useRawIDs set the ids are
// rendered as the upstream listed them instead, for consumers that match
// channels on the provider's original ids.
func RenderXMLTV(snapshot *models.Snapshot, useRawIDs bool) ([]byte, error) {
	doc := xmltvDocument{Generator: "epg-cacher"}

	channels := make([]models.Channel, len(snapshot.Channels))
	copy(channels, snapshot.Channels)
	sort.Slice(channels, func(i, j int) bool { return channels[i].ID < channels[j].ID })

	for _, ch := range channels {
		id := ch.ID
		if useRawIDs && ch.RawID != "" {
			id = ch.RawID
		}
		xc := xmltvChannel{ID: id, DisplayName: ch.DisplayName}
		if ch.IconURL != "" {
			xc.Icons = append(xc.Icons, xmltvIcon{Src: ch.IconURL})
		}
		doc.Channels = append(doc.Channels, xc)

		for _, p := range snapshot.Programmes[ch.ID] {
			xp := xmltvProgramme{
				Channel:     id,
				Start:       formatXMLTVTime(p.Start),
				Stop:        formatXMLTVTime(p.Stop),
				Title:       p.Title,
				Description: p.Description,
				Category:    p.Category,
			}
			for i, src := range p.Icons {
				icon := xmltvIcon{Src: src}
				if i == 0 {
					icon.Width, icon.Height = "300", "200"
				}
				xp.Icons = append(xp.Icons, icon)
			}
			doc.Programmes = append(doc.Programmes, xp)
		}
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode xmltv: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

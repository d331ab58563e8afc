package main

import (
	"fmt"
	"log"
	"os"
	"sort"

	"epgcacher/services/normalize"
)

// Parses an XMLTV file the same way the refresh cycle does and prints what
// would survive normalization. Useful for checking a new guide source
// before pointing the service at it.
func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: validate_guide <guide.xml>")
	}
	path := os.Args[1]

	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("Failed to read %s: %v", path, err)
	}

	res, err := normalize.Normalize(data, "validate")
	if err != nil {
		log.Fatalf("Guide rejected: %v", err)
	}

	fmt.Printf("%s: %d channels, %d programmes, %d entries skipped\n",
		path, len(res.Channels), len(res.Programmes), res.Skipped)

	perChannel := make(map[string]int)
	for _, p := range res.Programmes {
		perChannel[normalize.SafeChannelID(p.ChannelID)]++
	}

	ids := make([]string, 0, len(perChannel))
	for id := range perChannel {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		fmt.Printf("  %-40s %5d programmes\n", id, perChannel[id])
	}

	empty := 0
	for _, ch := range res.Channels {
		if perChannel[normalize.SafeChannelID(ch.ID)] == 0 {
			empty++
		}
	}
	if empty > 0 {
		fmt.Printf("  %d channels carry no programmes\n", empty)
	}
}

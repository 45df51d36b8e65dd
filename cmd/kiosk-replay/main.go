// kiosk-replay dumps a recorded backend event log as pretty JSON, one
// record per entry, for offline inspection of a problematic session.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"time"

	"kiosk-vision-go/internal/record"
)

func main() {
	var (
		path  = flag.String("path", "", "Path to event log .bin file")
		limit = flag.Int("limit", 0, "Max records to dump (0 = all)")
		event = flag.String("event", "", "Only dump records with this event name")
	)
	flag.Parse()

	if *path == "" {
		log.Fatal("path is required")
	}

	reader, err := record.Open(*path)
	if err != nil {
		log.Fatalf("open event log: %v", err)
	}
	defer reader.Close()

	count := 0
	for {
		if *limit > 0 && count >= *limit {
			return
		}
		entry, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			log.Fatalf("read record: %v", err)
		}
		if *event != "" && entry.Event != *event {
			continue
		}

		log.Printf("record %d event=%s timestamp=%s size=%d",
			count, entry.Event, entry.Timestamp.Format(time.RFC3339Nano), len(entry.Payload))

		var decoded any
		if err := json.Unmarshal(entry.Payload, &decoded); err != nil {
			log.Printf("record %d: JSON decode error: %v", count, err)
			count++
			continue
		}
		pretty, err := json.MarshalIndent(decoded, "", "  ")
		if err != nil {
			log.Printf("record %d: JSON encode error: %v", count, err)
			count++
			continue
		}
		fmt.Println(string(pretty))
		count++
	}
}

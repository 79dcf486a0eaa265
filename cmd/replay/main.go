package main

import (
	"errors"
	"flag"
	"io"
	"log"
	"os"

	"github.com/bytedance/sonic"

	"main/internal/codec"
	"main/internal/recorder"
)

// replay prints recorded WAL segments as JSON lines, newest segment last.
// It is the offline half of the recorder: what the pipeline wrote, this
// reads back for audits and incident reconstruction. With -state it runs
// the recording back through the order and position state machines and
// prints the verified end state instead of the raw records.
func main() {
	dir := flag.String("dir", "testdata/wal", "WAL directory")
	prefix := flag.String("prefix", "wal", "WAL file prefix")
	typeFilter := flag.String("type", "", "Only print events of this type (e.g. order_intent)")
	traceFilter := flag.Uint64("trace", 0, "Only print events with this trace id (0=all)")
	limit := flag.Int("limit", 0, "Stop after N records (0=all)")
	state := flag.Bool("state", false, "Replay through the state machines and print the summary")
	flag.Parse()

	if *state {
		summary, err := recorder.Replay(*dir, *prefix)
		if err != nil {
			log.Fatalf("replay state: %v", err)
		}
		out := sonic.ConfigFastest.NewEncoder(os.Stdout)
		out.SetIndent("", "  ")
		if err := out.Encode(summary); err != nil {
			log.Fatalf("encode summary: %v", err)
		}
		if len(summary.Violations) > 0 {
			os.Exit(1)
		}
		return
	}

	segments, err := recorder.Segments(*dir, *prefix)
	if err != nil {
		log.Fatalf("list segments: %v", err)
	}
	if len(segments) == 0 {
		log.Fatalf("no segments under %s with prefix %s", *dir, *prefix)
	}

	out := sonic.ConfigFastest.NewEncoder(os.Stdout)
	printed := 0
	for _, path := range segments {
		n, err := dump(path, out, *typeFilter, *traceFilter, *limit, printed)
		if err != nil {
			log.Fatalf("read %s: %v", path, err)
		}
		printed += n
		if *limit > 0 && printed >= *limit {
			return
		}
	}
}

type line struct {
	Type    string `json:"type"`
	Seq     uint64 `json:"seq"`
	Source  uint16 `json:"source"`
	TsEvent int64  `json:"tsEvent"`
	TsRecv  int64  `json:"tsRecv"`
	TraceID uint64 `json:"traceId"`
	Payload any    `json:"payload,omitempty"`
}

func dump(path string, out sonic.Encoder, typeFilter string, traceFilter uint64, limit, printed int) (int, error) {
	reader, err := recorder.Open(path)
	if err != nil {
		return 0, err
	}
	defer reader.Close()

	n := 0
	for {
		record, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		header := record.Header
		if typeFilter != "" && header.Type.String() != typeFilter {
			continue
		}
		if traceFilter != 0 && header.TraceID != traceFilter {
			continue
		}
		payload, _ := codec.DecodeEvent(header.Type, record.Payload)
		if err := out.Encode(line{
			Type:    header.Type.String(),
			Seq:     header.Seq,
			Source:  header.Source,
			TsEvent: header.TsEvent,
			TsRecv:  header.TsRecv,
			TraceID: header.TraceID,
			Payload: payload,
		}); err != nil {
			return n, err
		}
		n++
		if limit > 0 && printed+n >= limit {
			return n, nil
		}
	}
}

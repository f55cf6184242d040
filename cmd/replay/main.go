// Command replay runs a captured snapshot log through the differ and
// classifier and prints the resulting events as JSON lines. The same log
// always yields the same output, which makes it the fastest way to vet a
// rule change against real match data without touching a provider.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hypecast/caster/internal/classify"
	"github.com/hypecast/caster/internal/differ"
	"github.com/hypecast/caster/internal/domain"
)

type eventOut struct {
	Kind        domain.EventKind `json:"kind"`
	Priority    string           `json:"priority"`
	Subject     string           `json:"subject"`
	Timestamp   time.Time        `json:"timestamp"`
	Description string           `json:"description"`
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	if err := run(logger); err != nil {
		logger.Error("replay failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	var (
		file            = flag.String("file", "-", "snapshot log, one JSON object per line (- for stdin)")
		step            = flag.Duration("step", 100*time.Millisecond, "synthetic interval when a line has no _ts field")
		objectiveStates = flag.Bool("objective-states", false, "enable the tracked-objective rules")
	)
	flag.Parse()

	in := os.Stdin
	if *file != "-" {
		f, err := os.Open(*file)
		if err != nil {
			return fmt.Errorf("open snapshot log: %w", err)
		}
		defer f.Close()
		in = f
	}

	cfg := classify.DefaultConfig()
	cfg.ObjectiveStates = *objectiveStates
	classifier := classify.New(cfg, logger)

	out := json.NewEncoder(os.Stdout)
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 1<<20), 1<<20)

	var prev *domain.Snapshot
	base := time.Now()
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var body map[string]any
		if err := json.Unmarshal(raw, &body); err != nil {
			logger.Warn("malformed snapshot skipped",
				"error", domain.ErrMalformedSnapshot("unparseable log line", err), "line", lineNo)
			continue
		}

		ts := base.Add(time.Duration(lineNo-1) * *step)
		if s, ok := body["_ts"].(string); ok {
			if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
				ts = parsed
			}
			delete(body, "_ts")
		}
		delete(body, "auth")

		snap := domain.NewSnapshot(ts, body)
		deltas := differ.Diff(prev, snap)
		prev = snap
		if len(deltas) == 0 {
			continue
		}

		for _, ev := range classifier.Classify(snap, deltas) {
			if err := out.Encode(eventOut{
				Kind:        ev.Kind,
				Priority:    ev.Priority.String(),
				Subject:     ev.Subject,
				Timestamp:   ev.Timestamp,
				Description: ev.Description,
			}); err != nil {
				return fmt.Errorf("encode event: %w", err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read snapshot log: %w", err)
	}
	return nil
}

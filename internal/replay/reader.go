// Package replay feeds the estimation engine from recorded or synthetic
// perception frames instead of a live source. Recorded frames are JSONL,
// one frame per line, validated against an embedded schema before use so a
// malformed recording fails at load rather than mid-run.
package replay

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/banshee-data/signal.report/internal/traffic"
)

//go:embed schema.json
var frameSchemaJSON string

var frameSchema = jsonschema.MustCompileString("frame.schema.json", frameSchemaJSON)

// Frame is one perception frame: a timestamp plus every vehicle observed at
// that instant.
type Frame struct {
	Time         float64               `json:"time"`
	Observations []traffic.Observation `json:"observations"`
}

// ReadFrames parses a JSONL frame stream. Every line must validate against
// the frame schema and frames must be in strictly increasing time order;
// the first bad line fails the whole read with its line number.
func ReadFrames(r io.Reader) ([]Frame, error) {
	scanner := bufio.NewScanner(r)
	// Frames with many observations exceed the default line limit.
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var frames []Frame
	lineNo := 0
	lastTime := -1.0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var payload any
		if err := json.Unmarshal(line, &payload); err != nil {
			return nil, fmt.Errorf("line %d: invalid JSON: %w", lineNo, err)
		}
		if err := frameSchema.Validate(payload); err != nil {
			return nil, fmt.Errorf("line %d: schema violation: %w", lineNo, err)
		}

		var frame Frame
		if err := json.Unmarshal(line, &frame); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}

		// Unassigned vehicles carry the sentinel distance. JSON omits the
		// field rather than encoding -1, so restore it here.
		for i, obs := range frame.Observations {
			if !obs.HasLane() && obs.DistanceToStopLine == 0 {
				frame.Observations[i].DistanceToStopLine = traffic.NoStopLineDistance
			}
		}

		if frame.Time <= lastTime {
			return nil, fmt.Errorf("line %d: frame time %v not after previous %v", lineNo, frame.Time, lastTime)
		}
		lastTime = frame.Time

		frames = append(frames, frame)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("line %d: %w", lineNo, err)
	}

	return frames, nil
}

// ReadFile reads a JSONL frame recording from disk.
func ReadFile(path string) ([]Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open recording: %w", err)
	}
	defer f.Close()

	frames, err := ReadFrames(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return frames, nil
}

// WriteFrames writes frames as JSONL, one frame per line.
func WriteFrames(w io.Writer, frames []Frame) error {
	enc := json.NewEncoder(w)
	for i, frame := range frames {
		if err := enc.Encode(frame); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
	}
	return nil
}

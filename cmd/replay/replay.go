package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cardscan/internal/api/scanner"
	"cardscan/internal/capture"
)

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true}

// loadFrames reads every image in dir in name order.
func loadFrames(dir string) ([][]byte, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	frames := make([][]byte, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		frames = append(frames, data)
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("no images in %s", dir)
	}
	return frames, nil
}

// director answers the host prompts the way a user would and decides which
// image the fake camera shows. Every capture advances to the next image.
type director struct {
	mode     capture.ScanMode
	backMode capture.BackMode
	total    int

	current  int
	phase    capture.Phase
	finished bool
}

func newDirector(mode capture.ScanMode, backMode capture.BackMode, total int) *director {
	return &director{mode: mode, backMode: backMode, total: total}
}

func isScanPhase(p capture.Phase) bool {
	switch p {
	case capture.PhaseScanSharedBack, capture.PhaseScanFront, capture.PhaseScanBackIndividual:
		return true
	}
	return false
}

// Observe returns the control messages to send in reply to a status.
func (d *director) Observe(st scanner.StatusPayload) []scanner.ControlMessage {
	prev := d.phase
	d.phase = capture.Phase(st.Phase)
	if prev == d.phase {
		return nil
	}
	if isScanPhase(prev) && st.Error == "" {
		d.current++
	}

	switch d.phase {
	case capture.PhaseOrientationHint:
		return []scanner.ControlMessage{{Type: scanner.MessageAcknowledgeOrientation}}
	case capture.PhaseModeSelect:
		return []scanner.ControlMessage{{Type: scanner.MessageSelectMode, Mode: string(d.mode)}}
	case capture.PhaseBackModeSelect:
		return []scanner.ControlMessage{{Type: scanner.MessageSelectBackMode, Mode: string(d.backMode)}}
	case capture.PhaseFlipHint:
		if d.current >= d.total {
			return d.finish()
		}
		return []scanner.ControlMessage{{Type: scanner.MessageAcknowledgeFlip}}
	case capture.PhaseScanFront:
		if d.current >= d.total {
			return d.finish()
		}
	}
	return nil
}

func (d *director) finish() []scanner.ControlMessage {
	if d.finished {
		return nil
	}
	d.finished = true
	return []scanner.ControlMessage{{Type: scanner.MessageFinish}}
}

// Frame is the index of the image the camera currently shows.
func (d *director) Frame() int {
	if d.current >= d.total {
		return d.total - 1
	}
	return d.current
}

func (d *director) Streaming() bool {
	return isScanPhase(d.phase) && !d.finished
}

package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/surge-downloader/gridsync/internal/engine/scheduler"
	"github.com/surge-downloader/gridsync/internal/engine/types"
)

// exportLoaded writes every loaded payload to dir/<layer>/<source> and
// returns the number of files written.
func exportLoaded(sched *scheduler.Scheduler, layers []types.LayerID, dir string) (int, error) {
	written := 0
	for _, layer := range layers {
		steps, err := sched.TimeSteps(layer)
		if err != nil {
			return written, err
		}
		indices, err := sched.GetLoadedIndices(layer)
		if err != nil {
			return written, err
		}
		if len(indices) == 0 {
			continue
		}

		layerDir := filepath.Join(dir, string(layer))
		if err := os.MkdirAll(layerDir, 0755); err != nil {
			return written, err
		}

		for _, idx := range indices {
			payload, err := sched.GetData(layer, idx)
			if err != nil {
				return written, err
			}
			n, err := writePayload(layerDir, steps[idx], payload)
			written += n
			if err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

func writePayload(dir string, step types.TimeStep, p *types.Payload) (int, error) {
	var files map[string][]byte
	switch p.Kind {
	case types.PayloadPair:
		if len(step.Sources) != 2 {
			return 0, fmt.Errorf("timestep %s: pair payload for %d sources", step.Label(), len(step.Sources))
		}
		files = map[string][]byte{step.Sources[0]: p.U, step.Sources[1]: p.V}
	default:
		if len(step.Sources) != 1 {
			return 0, fmt.Errorf("timestep %s: single payload for %d sources", step.Label(), len(step.Sources))
		}
		files = map[string][]byte{step.Sources[0]: p.Data}
	}

	n := 0
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

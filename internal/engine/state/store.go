// Package state holds the per-layer, per-timestep availability records.
package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/surge-downloader/gridsync/internal/engine/types"
)

// Store is the single source of truth for timestamp status.
type Store struct {
	mu     sync.RWMutex
	layers map[types.LayerID][]types.TimestampState
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{layers: make(map[types.LayerID][]types.TimestampState)}
}

// Register creates n empty records for layer.
func (s *Store) Register(layer types.LayerID, n int) error {
	if n <= 0 {
		return fmt.Errorf("register %q: %w", layer, types.ErrNoTimeSteps)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.layers[layer]; ok {
		return fmt.Errorf("register %q: %w", layer, types.ErrAlreadyRegistered)
	}
	s.layers[layer] = make([]types.TimestampState, n)
	return nil
}

// Remove drops every record of layer. It reports whether the layer existed.
func (s *Store) Remove(layer types.LayerID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.layers[layer]
	delete(s.layers, layer)
	return ok
}

// Has reports whether layer is registered.
func (s *Store) Has(layer types.LayerID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.layers[layer]
	return ok
}

// Len returns the number of records of layer, or 0 if unregistered.
func (s *Store) Len(layer types.LayerID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.layers[layer])
}

// lookup must be called with s.mu held.
func (s *Store) lookup(layer types.LayerID, index int) ([]types.TimestampState, error) {
	records, ok := s.layers[layer]
	if !ok {
		return nil, fmt.Errorf("%q: %w", layer, types.ErrNotRegistered)
	}
	if index < 0 || index >= len(records) {
		return nil, fmt.Errorf("%q[%d]: %w", layer, index, types.ErrIndexOutOfRange)
	}
	return records, nil
}

// Get returns a copy of the record at (layer, index).
func (s *Store) Get(layer types.LayerID, index int) (types.TimestampState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records, err := s.lookup(layer, index)
	if err != nil {
		return types.TimestampState{}, err
	}
	return records[index], nil
}

// validTransition lists the allowed status changes. failed -> empty is the
// explicit retry path.
func validTransition(from, to types.Status) bool {
	switch from {
	case types.StatusEmpty:
		return to == types.StatusLoading
	case types.StatusLoading:
		return to == types.StatusLoaded || to == types.StatusFailed
	case types.StatusFailed:
		return to == types.StatusEmpty
	}
	return false
}

// Set replaces the record at (layer, index) after validating the transition.
func (s *Store) Set(layer types.LayerID, index int, st types.TimestampState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.lookup(layer, index)
	if err != nil {
		return err
	}
	from := records[index].Status
	if !validTransition(from, st.Status) {
		return fmt.Errorf("%q[%d] %s -> %s: %w", layer, index, from, st.Status, types.ErrInvalidTransition)
	}
	records[index] = st
	return nil
}

// Begin marks an empty record as loading. It returns false when the record
// is not empty, which callers use to reject duplicate dispatches.
func (s *Store) Begin(layer types.LayerID, index int, p types.Priority) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.lookup(layer, index)
	if err != nil {
		return false, err
	}
	if records[index].Status != types.StatusEmpty {
		return false, nil
	}
	records[index] = types.TimestampState{Status: types.StatusLoading, Priority: p}
	return true, nil
}

// Raise lifts the priority of a loading record to p. Lower priorities and
// records in any other status are left unchanged.
func (s *Store) Raise(layer types.LayerID, index int, p types.Priority) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.lookup(layer, index)
	if err != nil {
		return false, err
	}
	if records[index].Status != types.StatusLoading || records[index].Priority >= p {
		return false, nil
	}
	records[index].Priority = p
	return true, nil
}

// Finish moves a loading record to loaded (err == nil) or failed.
func (s *Store) Finish(layer types.LayerID, index int, payload *types.Payload, bytes int64, elapsed time.Duration, loadErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.lookup(layer, index)
	if err != nil {
		return err
	}
	cur := records[index]
	if cur.Status != types.StatusLoading {
		return fmt.Errorf("%q[%d] finish from %s: %w", layer, index, cur.Status, types.ErrInvalidTransition)
	}
	next := types.TimestampState{Elapsed: elapsed, Priority: cur.Priority}
	if loadErr != nil {
		next.Status = types.StatusFailed
		next.Err = loadErr
	} else {
		next.Status = types.StatusLoaded
		next.Payload = payload
		next.Bytes = bytes
	}
	records[index] = next
	return nil
}

// Reset moves a failed record back to empty.
func (s *Store) Reset(layer types.LayerID, index int) error {
	return s.Set(layer, index, types.TimestampState{Status: types.StatusEmpty})
}

// IsLoaded reports whether (layer, index) is loaded. Unknown keys are not loaded.
func (s *Store) IsLoaded(layer types.LayerID, index int) bool {
	st, err := s.Get(layer, index)
	return err == nil && st.Status == types.StatusLoaded
}

// IsLoading reports whether (layer, index) is currently being fetched.
func (s *Store) IsLoading(layer types.LayerID, index int) bool {
	st, err := s.Get(layer, index)
	return err == nil && st.Status == types.StatusLoading
}

func (s *Store) indicesWith(layer types.LayerID, status types.Status) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records, ok := s.layers[layer]
	if !ok {
		return nil, fmt.Errorf("%q: %w", layer, types.ErrNotRegistered)
	}
	out := []int{}
	for i, r := range records {
		if r.Status == status {
			out = append(out, i)
		}
	}
	return out, nil
}

// LoadedIndices returns the loaded indices of layer in ascending order.
func (s *Store) LoadedIndices(layer types.LayerID) ([]int, error) {
	return s.indicesWith(layer, types.StatusLoaded)
}

// FailedIndices returns the failed indices of layer in ascending order.
func (s *Store) FailedIndices(layer types.LayerID) ([]int, error) {
	return s.indicesWith(layer, types.StatusFailed)
}

// LoadingIndices returns the indices of layer currently being fetched.
func (s *Store) LoadingIndices(layer types.LayerID) ([]int, error) {
	return s.indicesWith(layer, types.StatusLoading)
}

// EmptyIndices returns the indices of layer that have not been attempted.
func (s *Store) EmptyIndices(layer types.LayerID) ([]int, error) {
	return s.indicesWith(layer, types.StatusEmpty)
}

// Counts walks the layer once and returns a Progress with counts filled in.
// meanLoadedBytes is the average downloaded size over loaded records.
func (s *Store) Counts(layer types.LayerID) (p types.Progress, meanLoadedBytes float64, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records, ok := s.layers[layer]
	if !ok {
		return types.Progress{}, 0, fmt.Errorf("%q: %w", layer, types.ErrNotRegistered)
	}
	p.Layer = layer
	p.Total = len(records)
	var loadedBytes int64
	for _, r := range records {
		switch r.Status {
		case types.StatusEmpty:
			p.Empty++
		case types.StatusLoading:
			p.Loading++
		case types.StatusLoaded:
			p.Loaded++
			loadedBytes += r.Bytes
		case types.StatusFailed:
			p.Failed++
		}
	}
	if p.Loaded > 0 {
		meanLoadedBytes = float64(loadedBytes) / float64(p.Loaded)
	}
	return p, meanLoadedBytes, nil
}

// Statuses returns the status of every record of layer, by index.
func (s *Store) Statuses(layer types.LayerID) ([]types.Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records, ok := s.layers[layer]
	if !ok {
		return nil, fmt.Errorf("%q: %w", layer, types.ErrNotRegistered)
	}
	out := make([]types.Status, len(records))
	for i, r := range records {
		out[i] = r.Status
	}
	return out, nil
}

package inmemorystore

import (
	"context"
	"sync"

	"github.com/vk/burstci/internal/model"
	"github.com/vk/burstci/internal/nodestore"
)

// Store is an in-memory implementation of nodestore.Store using sync.Map
// for fine-grained concurrent access without global lock contention.
//
// The store maintains three independent sync.Maps:
//   - states: instance ID to model.Status
//   - outputs: instance ID to the recorded result
//   - errors: instance ID to the recorded error
type Store struct {
	states  sync.Map
	outputs sync.Map
	errors  sync.Map
}

// New creates a new, empty in-memory state store.
func New() nodestore.Store {
	return &Store{}
}

// SetStatus updates the status of an instance.
func (s *Store) SetStatus(ctx context.Context, id string, status model.Status) error {
	s.states.Store(id, status)
	return nil
}

// GetStatus returns StatusPending when no status has been set.
func (s *Store) GetStatus(ctx context.Context, id string) (model.Status, error) {
	status, ok := s.states.Load(id)
	if !ok {
		return model.StatusPending, nil
	}
	return status.(model.Status), nil
}

// SetOutput records the result of an instance.
func (s *Store) SetOutput(ctx context.Context, id string, output any) error {
	s.outputs.Store(id, output)
	return nil
}

// GetOutput retrieves the recorded result of an instance.
func (s *Store) GetOutput(ctx context.Context, id string) (any, error) {
	output, ok := s.outputs.Load(id)
	if !ok {
		return nil, nil
	}
	return output, nil
}

// SetError records the error of an instance.
func (s *Store) SetError(ctx context.Context, id string, nodeErr error) error {
	s.errors.Store(id, nodeErr)
	return nil
}

// GetError retrieves the recorded error of an instance.
func (s *Store) GetError(ctx context.Context, id string) (error, error) {
	err, ok := s.errors.Load(id)
	if !ok {
		return nil, nil
	}
	return err.(error), nil
}

// Snapshot copies every recorded status.
func (s *Store) Snapshot(ctx context.Context) (map[string]model.Status, error) {
	out := make(map[string]model.Status)
	s.states.Range(func(k, v any) bool {
		out[k.(string)] = v.(model.Status)
		return true
	})
	return out, nil
}

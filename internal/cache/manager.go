// Package cache restores and saves a job's cached paths around its steps.
//
// The manager computes one key per instance, restores before the first step
// and saves after a successful job. The store behind it is a plain key→blob
// collaborator; every fault it raises is soft: a restore that cannot reach
// the store is retried once and then reported as a miss, and a failed save is
// logged without affecting the job.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/vk/burstci/internal/ctxlog"
	"github.com/vk/burstci/internal/model"
	"github.com/zclconf/go-cty/cty/function"
)

// Store is the key→blob collaborator.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, data []byte) error
}

// Outcome is the result of a restore.
type Outcome string

const (
	// OutcomeHit means a prior save was found and unpacked.
	OutcomeHit Outcome = "hit"
	// OutcomeMiss means nothing usable was found.
	OutcomeMiss Outcome = "miss"
	// OutcomeDisabled means the job declares no cache.
	OutcomeDisabled Outcome = "disabled"
)

// Manager coordinates cache keys, restores and saves.
type Manager struct {
	store       Store
	compression Compression
	// retryDelay is the pause before the single restore retry.
	retryDelay time.Duration
}

// NewManager creates a manager over store.
func NewManager(store Store, compression Compression) *Manager {
	return &Manager{store: store, compression: compression, retryDelay: 200 * time.Millisecond}
}

// Key renders the cache key of inst. The instance's axis values are always
// appended so two instances of one job can never share a key, whatever the
// template says.
func (m *Manager) Key(inst *model.JobInstance, rc model.RunContext, root string) (string, error) {
	spec := inst.Template.Cache
	if spec == nil || spec.Key == nil {
		return "", fmt.Errorf("job %q declares no cache key", inst.Template.Name)
	}
	rendered, err := spec.Key.Render(inst.Vars(rc), map[string]function.Function{
		HashFilesFunction: HashFilesFunc(root),
	})
	if err != nil {
		return "", fmt.Errorf("computing cache key: %w", err)
	}
	if len(inst.Axes) > 0 {
		rendered += "#" + inst.Axes.Canonical()
	}
	return rendered, nil
}

// Restore fetches key and unpacks it under root. It never fails: every
// problem is logged and reported as a miss.
func (m *Manager) Restore(ctx context.Context, key, root string) Outcome {
	logger := ctxlog.FromContext(ctx).With("cacheKey", key)

	blob, ok, err := m.store.Get(ctx, key)
	if err != nil {
		logger.Debug("Cache restore failed, retrying once.", "error", err)
		select {
		case <-ctx.Done():
			return OutcomeMiss
		case <-time.After(m.retryDelay):
		}
		blob, ok, err = m.store.Get(ctx, key)
	}
	if err != nil {
		logger.Warn("Cache store unreachable, treating restore as a miss.", "error", err)
		return OutcomeMiss
	}
	if !ok {
		logger.Info("Cache miss.")
		return OutcomeMiss
	}

	raw, err := unseal(blob)
	if err != nil {
		logger.Warn("Cache entry is corrupt, treating restore as a miss.", "error", err)
		return OutcomeMiss
	}
	files, err := unpack(root, raw)
	if err != nil {
		logger.Warn("Cache entry could not be restored, treating restore as a miss.", "error", err)
		return OutcomeMiss
	}
	logger.Info("Cache hit.", "files", files)
	return OutcomeHit
}

// Save archives the paths of spec under root and stores them under key.
func (m *Manager) Save(ctx context.Context, key string, spec *model.CacheSpec, root string) error {
	logger := ctxlog.FromContext(ctx).With("cacheKey", key)

	raw, files, err := pack(root, spec.Paths)
	if err != nil {
		return fmt.Errorf("archiving cache paths: %w", err)
	}
	blob, err := seal(raw, m.compression)
	if err != nil {
		return fmt.Errorf("compressing cache archive: %w", err)
	}
	if err := m.store.Put(ctx, key, blob); err != nil {
		return fmt.Errorf("storing cache entry: %w", err)
	}
	logger.Info("Cache saved.", "files", files, "bytes", len(blob), "compression", m.compression.String())
	return nil
}

package cache

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/burstci/internal/blobstore"
	"github.com/vk/burstci/internal/condition"
	"github.com/vk/burstci/internal/ctxlog"
	"github.com/vk/burstci/internal/model"
)

// flakyStore fails the first failures calls to Get.
type flakyStore struct {
	*blobstore.Memory
	mu       sync.Mutex
	failures int
	gets     int
}

func (s *flakyStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	s.gets++
	fail := s.failures > 0
	if fail {
		s.failures--
	}
	s.mu.Unlock()
	if fail {
		return nil, false, errors.New("connection refused")
	}
	return s.Memory.Get(ctx, key)
}

func testContext() context.Context {
	return ctxlog.Discard(context.Background())
}

func writeFile(t *testing.T, root, name, content string) {
	t.Helper()
	p := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func newManager(store Store) *Manager {
	m := NewManager(store, CompressionZstd)
	m.retryDelay = 0
	return m
}

func TestSaveRestore_RoundTrip(t *testing.T) {
	for _, tag := range []Compression{CompressionNone, CompressionLZ4, CompressionZstd} {
		t.Run(tag.String(), func(t *testing.T) {
			// --- Arrange ---
			ctx := testContext()
			store := blobstore.NewMemory()
			m := NewManager(store, tag)
			src := t.TempDir()
			writeFile(t, src, "deps/a.txt", strings.Repeat("cached content ", 200))
			writeFile(t, src, "deps/nested/b.bin", "\x00\x01\x02")
			spec := &model.CacheSpec{Paths: []string{"deps"}}

			// --- Act ---
			require.NoError(t, m.Save(ctx, "k", spec, src))
			require.NoError(t, m.Save(ctx, "k", spec, src))
			dst := t.TempDir()
			outcome := m.Restore(ctx, "k", dst)

			// --- Assert ---
			assert.Equal(t, OutcomeHit, outcome)
			got, err := os.ReadFile(filepath.Join(dst, "deps/a.txt"))
			require.NoError(t, err)
			assert.Equal(t, strings.Repeat("cached content ", 200), string(got))
			got, err = os.ReadFile(filepath.Join(dst, "deps/nested/b.bin"))
			require.NoError(t, err)
			assert.Equal(t, "\x00\x01\x02", string(got))
		})
	}
}

func TestRestore_MissIsNotAnError(t *testing.T) {
	m := newManager(blobstore.NewMemory())
	assert.Equal(t, OutcomeMiss, m.Restore(testContext(), "absent", t.TempDir()))
}

func TestRestore_RetriesOnce(t *testing.T) {
	ctx := testContext()

	t.Run("recovers on retry", func(t *testing.T) {
		store := &flakyStore{Memory: blobstore.NewMemory(), failures: 1}
		m := newManager(store)
		src := t.TempDir()
		writeFile(t, src, "f", "x")
		require.NoError(t, m.Save(ctx, "k", &model.CacheSpec{Paths: []string{"f"}}, src))

		assert.Equal(t, OutcomeHit, m.Restore(ctx, "k", t.TempDir()))
		assert.Equal(t, 2, store.gets)
	})

	t.Run("degrades to miss after the retry", func(t *testing.T) {
		store := &flakyStore{Memory: blobstore.NewMemory(), failures: 5}
		m := newManager(store)

		assert.Equal(t, OutcomeMiss, m.Restore(ctx, "k", t.TempDir()))
		assert.Equal(t, 2, store.gets, "restore is retried at most once")
	})
}

func TestRestore_CorruptEntryIsMiss(t *testing.T) {
	ctx := testContext()
	store := blobstore.NewMemory()
	require.NoError(t, store.Put(ctx, "k", []byte{0x07, 0x01, 0xff}))

	m := newManager(store)
	assert.Equal(t, OutcomeMiss, m.Restore(ctx, "k", t.TempDir()))
}

func TestSeal_Header(t *testing.T) {
	data := bytes.Repeat([]byte("abcd"), 1024)

	sealed, err := seal(data, CompressionLZ4)
	require.NoError(t, err)
	assert.Equal(t, byte(CompressionLZ4), sealed[0])
	assert.Less(t, len(sealed), len(data))

	back, err := unseal(sealed)
	require.NoError(t, err)
	assert.Equal(t, data, back)

	t.Run("incompressible data is stored raw", func(t *testing.T) {
		tiny := []byte("x")
		sealed, err := seal(tiny, CompressionZstd)
		require.NoError(t, err)
		assert.Equal(t, byte(CompressionNone), sealed[0])
		back, err := unseal(sealed)
		require.NoError(t, err)
		assert.Equal(t, tiny, back)
	})
}

func TestParseCompression(t *testing.T) {
	c, err := ParseCompression("")
	require.NoError(t, err)
	assert.Equal(t, CompressionZstd, c)

	c, err = ParseCompression("lz4")
	require.NoError(t, err)
	assert.Equal(t, CompressionLZ4, c)

	_, err = ParseCompression("gzip")
	assert.ErrorContains(t, err, "unknown compression")
}

func TestKey(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "go.sum", "v1")

	tmpl, err := condition.ParseTemplate(`go-${os}-${hash_files("go.sum")}`)
	require.NoError(t, err)
	require.NoError(t, tmpl.Check(condition.JobSchema([]string{"os"}), HashFilesFunction))

	job := &model.JobTemplate{Name: "test", Cache: &model.CacheSpec{Key: tmpl}}
	linux := &model.JobInstance{ID: "test[os=linux]", Template: job, OS: "linux",
		Axes: model.Combination{{Name: "os", Value: "linux"}}}
	macos := &model.JobInstance{ID: "test[os=macos]", Template: job, OS: "macos",
		Axes: model.Combination{{Name: "os", Value: "macos"}}}
	m := newManager(blobstore.NewMemory())

	k1, err := m.Key(linux, model.RunContext{}, root)
	require.NoError(t, err)
	k1again, err := m.Key(linux, model.RunContext{}, root)
	require.NoError(t, err)
	assert.Equal(t, k1, k1again, "unchanged files give a stable key")
	assert.True(t, strings.HasPrefix(k1, "go-linux-"))
	assert.True(t, strings.HasSuffix(k1, "#os=linux"))

	k2, err := m.Key(macos, model.RunContext{}, root)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k2, "distinct instances never share a key")

	writeFile(t, root, "go.sum", "v2")
	k3, err := m.Key(linux, model.RunContext{}, root)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3, "changed fingerprinted file changes the key")
}

func TestHashFiles(t *testing.T) {
	root := t.TempDir()

	sum, err := HashFiles(root, "missing.lock")
	require.NoError(t, err)
	assert.Empty(t, sum)

	writeFile(t, root, "a.lock", "a")
	writeFile(t, root, "b.lock", "b")
	first, err := HashFiles(root, "*.lock")
	require.NoError(t, err)
	assert.Len(t, first, 32)

	second, err := HashFiles(root, "b.lock", "a.lock")
	require.NoError(t, err)
	assert.Equal(t, first, second, "pattern order does not matter")
}

package cache

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/vk/burstci/internal/fsutil"
)

const archiveVersion = 1

// archive is the CBOR envelope stored in the blob store.
type archive struct {
	Version int     `cbor:"version"`
	Entries []entry `cbor:"entries"`
}

type entry struct {
	// Path is slash-separated and relative to the job working directory,
	// unless Abs is set.
	Path string `cbor:"path"`
	Abs  bool   `cbor:"abs,omitempty"`
	Mode uint32 `cbor:"mode"`
	Data []byte `cbor:"data"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	// Core deterministic encoding: identical trees produce identical bytes.
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("cache: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("cache: CBOR decoder initialization failed: " + err.Error())
	}
}

// pack archives the files matched by patterns under root.
func pack(root string, patterns []string) ([]byte, int, error) {
	files, err := fsutil.Glob(root, patterns...)
	if err != nil {
		return nil, 0, err
	}

	a := archive{Version: archiveVersion}
	for _, path := range files {
		info, err := os.Stat(path)
		if err != nil {
			return nil, 0, fmt.Errorf("stat %s: %w", path, err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, 0, fmt.Errorf("reading %s: %w", path, err)
		}

		e := entry{Mode: uint32(info.Mode().Perm()), Data: data}
		if rel, err := filepath.Rel(root, path); err == nil && !escapes(rel) {
			e.Path = filepath.ToSlash(rel)
		} else {
			e.Path, e.Abs = filepath.ToSlash(path), true
		}
		a.Entries = append(a.Entries, e)
	}

	raw, err := encMode.Marshal(a)
	if err != nil {
		return nil, 0, fmt.Errorf("encoding cache archive: %w", err)
	}
	return raw, len(a.Entries), nil
}

// unpack writes every archived file back, relative entries under root.
func unpack(root string, raw []byte) (int, error) {
	var a archive
	if err := decMode.Unmarshal(raw, &a); err != nil {
		return 0, fmt.Errorf("decoding cache archive: %w", err)
	}
	if a.Version != archiveVersion {
		return 0, fmt.Errorf("unsupported cache archive version %d", a.Version)
	}

	for _, e := range a.Entries {
		target := filepath.FromSlash(e.Path)
		if !e.Abs {
			if filepath.IsAbs(target) || escapes(target) {
				return 0, fmt.Errorf("cache entry %q escapes the working directory", e.Path)
			}
			target = filepath.Join(root, target)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return 0, fmt.Errorf("creating %s: %w", filepath.Dir(target), err)
		}
		mode := fs.FileMode(e.Mode).Perm()
		if mode == 0 {
			mode = 0o644
		}
		if err := os.WriteFile(target, e.Data, mode); err != nil {
			return 0, fmt.Errorf("restoring %s: %w", target, err)
		}
	}
	return len(a.Entries), nil
}

func escapes(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

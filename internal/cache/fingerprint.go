package cache

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/vk/burstci/internal/fsutil"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zeebo/blake3"
)

// HashFilesFunction is the name key templates use to fingerprint files.
const HashFilesFunction = "hash_files"

// HashFiles returns a BLAKE3 fingerprint over the files matched by patterns
// under root. Files are visited in sorted order and both their relative path
// and content are hashed, so the result only changes when the matched set or
// a file's content changes. No matches yields the empty string.
func HashFiles(root string, patterns ...string) (string, error) {
	files, err := fsutil.Glob(root, patterns...)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", nil
	}

	hasher := blake3.New()
	for _, path := range files {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		fmt.Fprintf(hasher, "%s\x00", filepath.ToSlash(rel))

		f, err := os.Open(path)
		if err != nil {
			return "", fmt.Errorf("opening %s: %w", path, err)
		}
		_, err = io.Copy(hasher, f)
		f.Close()
		if err != nil {
			return "", fmt.Errorf("hashing %s: %w", path, err)
		}
		hasher.Write([]byte{0})
	}
	return hex.EncodeToString(hasher.Sum(nil)[:16]), nil
}

// HashFilesFunc exposes HashFiles to templates, resolving patterns under root.
func HashFilesFunc(root string) function.Function {
	return function.New(&function.Spec{
		VarParam: &function.Parameter{Name: "patterns", Type: cty.String},
		Type:     function.StaticReturnType(cty.String),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			patterns := make([]string, len(args))
			for i, a := range args {
				patterns[i] = a.AsString()
			}
			sum, err := HashFiles(root, patterns...)
			if err != nil {
				return cty.UnknownVal(cty.String), err
			}
			return cty.StringVal(sum), nil
		},
	})
}

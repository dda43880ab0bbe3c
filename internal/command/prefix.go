package command

import (
	"bytes"
	"io"
	"sync"
)

// PrefixWriter labels every output line with a fixed prefix so interleaved
// output from concurrent instances stays attributable. Writes to the
// underlying writer are serialized through mu, which may be shared between
// writers targeting the same destination.
type PrefixWriter struct {
	mu     *sync.Mutex
	w      io.Writer
	prefix []byte
	buf    []byte
}

// NewPrefixWriter wraps w. A nil mu gets a private mutex.
func NewPrefixWriter(w io.Writer, prefix string, mu *sync.Mutex) *PrefixWriter {
	if mu == nil {
		mu = &sync.Mutex{}
	}
	return &PrefixWriter{mu: mu, w: w, prefix: []byte(prefix)}
}

// Write buffers partial lines and emits complete ones.
func (p *PrefixWriter) Write(b []byte) (int, error) {
	p.buf = append(p.buf, b...)
	for {
		i := bytes.IndexByte(p.buf, '\n')
		if i < 0 {
			break
		}
		if err := p.emit(p.buf[:i+1]); err != nil {
			return len(b), err
		}
		p.buf = p.buf[i+1:]
	}
	return len(b), nil
}

// Flush emits a trailing partial line, if any.
func (p *PrefixWriter) Flush() error {
	if len(p.buf) == 0 {
		return nil
	}
	line := append(p.buf, '\n')
	p.buf = nil
	return p.emit(line)
}

func (p *PrefixWriter) emit(line []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.w.Write(p.prefix); err != nil {
		return err
	}
	_, err := p.w.Write(line)
	return err
}

package harness

import (
	"bytes"
	"io"
)

// lastLineWriter forwards output line by line but holds back
// the most recent non-blank line, which is the candidate result
type lastLineWriter struct {
	forward io.Writer
	partial []byte
	last    []byte
	err     error
}

func (w *lastLineWriter) Write(p []byte) (int, error) {
	w.partial = append(w.partial, p...)
	for {
		i := bytes.IndexByte(w.partial, '\n')
		if i < 0 {
			break
		}
		w.push(w.partial[:i])
		w.partial = w.partial[i+1:]
	}
	return len(p), nil
}

func (w *lastLineWriter) push(line []byte) {
	line = bytes.TrimSuffix(line, []byte("\r"))
	if len(bytes.TrimSpace(line)) == 0 {
		w.emit(line)
		return
	}
	if w.last != nil {
		w.emit(w.last)
	}
	w.last = bytes.Clone(line)
}

// emit never fails the run, diagnostics are best effort
func (w *lastLineWriter) emit(line []byte) {
	if w.forward == nil || w.err != nil {
		return
	}
	if _, err := w.forward.Write(append(bytes.Clone(line), '\n')); err != nil {
		w.err = err
	}
}

// Last flushes an unterminated line and returns the final non-blank one
func (w *lastLineWriter) Last() []byte {
	if len(w.partial) > 0 {
		w.push(w.partial)
		w.partial = nil
	}
	return w.last
}

package runner

import (
	"bytes"
	"strings"
	"sync"

	"go.uber.org/zap"
)

const maxLineLength = 64 * 1024

// lineWriter consumes a process stream as it is produced. Each line is logged
// at debug level and the last lines are kept for the result.
type lineWriter struct {
	mu      sync.Mutex
	logger  *zap.SugaredLogger
	stream  string
	partial []byte
	tail    []string
	max     int
}

func newLineWriter(logger *zap.SugaredLogger, stream string, max int) *lineWriter {
	return &lineWriter{logger: logger, stream: stream, max: max}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.partial = append(w.partial, p...)
	for {
		i := bytes.IndexByte(w.partial, '\n')
		if i < 0 {
			break
		}
		w.emit(string(bytes.TrimRight(w.partial[:i], "\r")))
		w.partial = w.partial[i+1:]
	}
	if len(w.partial) > maxLineLength {
		w.emit(string(w.partial))
		w.partial = nil
	}
	return len(p), nil
}

// Flush emits a trailing line without a newline.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.partial) > 0 {
		w.emit(string(w.partial))
		w.partial = nil
	}
}

func (w *lineWriter) Tail() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return strings.Join(w.tail, "\n")
}

func (w *lineWriter) emit(line string) {
	w.logger.Debugw(line, "stream", w.stream)
	if w.max <= 0 {
		return
	}
	if len(w.tail) == w.max {
		w.tail = append(w.tail[:0], w.tail[1:]...)
	}
	w.tail = append(w.tail, line)
}

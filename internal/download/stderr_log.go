package download

import (
	"bytes"
	"sync"

	"github.com/rs/zerolog"
)

const maxStderrLine = 4 << 10

// lineLogger is an io.Writer that logs each complete stderr line.
type lineLogger struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	logger zerolog.Logger
	lines  int
}

func newLineLogger(logger zerolog.Logger) *lineLogger {
	return &lineLogger{logger: logger}
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf.Write(p)
	for {
		i := bytes.IndexByte(l.buf.Bytes(), '\n')
		if i < 0 {
			if l.buf.Len() > maxStderrLine {
				l.emit(l.buf.Next(maxStderrLine))
			}
			return len(p), nil
		}
		l.emit(l.buf.Next(i + 1))
	}
}

// Flush logs a trailing partial line.
func (l *lineLogger) Flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.buf.Len() > 0 {
		l.emit(l.buf.Next(l.buf.Len()))
	}
}

func (l *lineLogger) emit(line []byte) {
	line = bytes.TrimRight(line, "\r\n")
	if len(bytes.TrimSpace(line)) == 0 {
		return
	}
	l.lines++
	if bytes.HasPrefix(line, []byte("ERROR")) {
		l.logger.Warn().Bytes("line", line).Msg("extractor stderr")
		return
	}
	l.logger.Debug().Bytes("line", line).Msg("extractor stderr")
}

func (l *lineLogger) Lines() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lines
}

package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

// Logger is the process logger. A nil *Logger discards everything.
type Logger struct {
	mu  sync.Mutex
	out *log.Logger
}

func NewLogger() *Logger {
	return NewLoggerTo(os.Stdout)
}

func NewLoggerTo(w io.Writer) *Logger {
	return &Logger{out: log.New(w, "", log.LstdFlags|log.LUTC|log.Lmicroseconds)}
}

func (l *Logger) Printf(format string, args ...any) {
	l.write("INFO", format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	l.write("ERROR", format, args...)
}

func (l *Logger) write(level, format string, args ...any) {
	if l == nil || l.out == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_ = l.out.Output(3, level+" "+fmt.Sprintf(format, args...))
}

package log

import (
	"errors"
	"io"
)

// MultiWriter fans each log line out to every writer. Unlike io.MultiWriter
// a failing writer does not stop the others; all errors are joined.
type MultiWriter struct {
	writers []io.Writer
}

func NewMultiWriter() *MultiWriter {
	return &MultiWriter{}
}

// Add appends writer; nil writers are ignored.
func (m *MultiWriter) Add(writer io.Writer) *MultiWriter {
	if writer != nil {
		m.writers = append(m.writers, writer)
	}
	return m
}

// Len returns the number of attached writers.
func (m *MultiWriter) Len() int { return len(m.writers) }

func (m *MultiWriter) Write(p []byte) (int, error) {
	var errs []error
	for _, w := range m.writers {
		if _, err := w.Write(p); err != nil {
			errs = append(errs, err)
		}
	}
	return len(p), errors.Join(errs...)
}

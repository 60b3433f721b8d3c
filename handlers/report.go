package handlers

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Report is the payload of a generate-report job.
type Report struct {
	Name    string     `json:"name" msgpack:"name"`
	Columns []string   `json:"columns" msgpack:"columns"`
	Rows    [][]string `json:"rows" msgpack:"rows"`
}

// ReportSink stores a rendered report. Writing the same name twice must
// replace the earlier content.
type ReportSink interface {
	Write(ctx context.Context, name string, data []byte) error
}

// GenerateReport returns a handler that renders the payload as CSV and
// writes it to sink.
func GenerateReport(sink ReportSink) func(context.Context, Report) error {
	return func(ctx context.Context, r Report) error {
		if r.Name == "" {
			return errors.New("handlers: report has no name")
		}
		data, err := RenderCSV(r)
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return sink.Write(ctx, r.Name+".csv", data)
	}
}

// RenderCSV renders the header and rows of r. Every row must have as many
// cells as there are columns.
func RenderCSV(r Report) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if len(r.Columns) > 0 {
		if err := w.Write(r.Columns); err != nil {
			return nil, fmt.Errorf("render report %s: %w", r.Name, err)
		}
	}
	for i, row := range r.Rows {
		if len(r.Columns) > 0 && len(row) != len(r.Columns) {
			return nil, fmt.Errorf("render report %s: row %d has %d cells, want %d", r.Name, i, len(row), len(r.Columns))
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("render report %s: %w", r.Name, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("render report %s: %w", r.Name, err)
	}
	return buf.Bytes(), nil
}

// LogSink logs report sizes and discards the content.
type LogSink struct {
	Logger *slog.Logger
}

// Write implements ReportSink.
func (l LogSink) Write(_ context.Context, name string, data []byte) error {
	l.Logger.Info("report generated",
		slog.String("name", name),
		slog.Int("bytes", len(data)),
	)
	return nil
}

// MemorySink keeps reports in memory.
type MemorySink struct {
	mu      sync.Mutex
	reports map[string][]byte
}

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{reports: make(map[string][]byte)}
}

// Write implements ReportSink.
func (m *MemorySink) Write(_ context.Context, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports[name] = append([]byte(nil), data...)
	return nil
}

// Get returns a stored report.
func (m *MemorySink) Get(name string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.reports[name]
	return data, ok
}

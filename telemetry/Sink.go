// Package telemetry implements recording of training statistics and
// control map summaries
package telemetry

import (
	"context"
	"log/slog"
	"maps"
	"slices"
)

// Sink records named scalars at a training step, usually the number
// of frames trained on so far
type Sink interface {
	Record(ctx context.Context, step int, scalars map[string]float64) error
}

// Point is a single recorded scalar
type Point struct {
	Step  int
	Value float64
}

// Memory is a Sink which keeps all recorded scalars in memory
type Memory struct {
	series map[string][]Point
}

// NewMemory returns a new, empty Memory sink
func NewMemory() *Memory {
	return &Memory{series: make(map[string][]Point)}
}

// Record implements the Sink interface
func (m *Memory) Record(_ context.Context, step int,
	scalars map[string]float64) error {
	for name, v := range scalars {
		m.series[name] = append(m.series[name], Point{step, v})
	}
	return nil
}

// Series returns all points recorded under name, in recording order
func (m *Memory) Series(name string) []Point {
	return m.series[name]
}

// Names returns the sorted names of all recorded scalars
func (m *Memory) Names() []string {
	return slices.Sorted(maps.Keys(m.series))
}

// Logger is a Sink which logs recorded scalars
type Logger struct {
	logger *slog.Logger
}

// NewLogger returns a new Logger sink. If logger is nil, the default
// logger is used.
func NewLogger(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger}
}

// Record implements the Sink interface
func (l *Logger) Record(ctx context.Context, step int,
	scalars map[string]float64) error {
	attrs := make([]any, 0, 2*len(scalars)+2)
	attrs = append(attrs, "frames", step)
	for _, name := range slices.Sorted(maps.Keys(scalars)) {
		attrs = append(attrs, name, scalars[name])
	}
	l.logger.InfoContext(ctx, "summary", attrs...)
	return nil
}

type multi []Sink

// Multi returns a Sink which records to every sink in order, stopping
// at the first error
func Multi(sinks ...Sink) Sink {
	return multi(sinks)
}

func (m multi) Record(ctx context.Context, step int,
	scalars map[string]float64) error {
	for _, s := range m {
		if err := s.Record(ctx, step, scalars); err != nil {
			return err
		}
	}
	return nil
}

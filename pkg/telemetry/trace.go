package telemetry

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// TraceStep is one marked segment of a trace.
type TraceStep struct {
	Name     string  `json:"name"`
	Duration float64 `json:"duration_ms"`
}

// Trace accumulates marked segments of one operation and, once
// finished, is written as a jsonl line to the per-operation trace file.
type Trace struct {
	Name    string      `json:"name"`
	Start   time.Time   `json:"start"`
	Steps   []TraceStep `json:"steps"`
	TotalMS float64     `json:"total_ms"`

	lastMark time.Time
	tracer   *Tracer
}

// Tracer writes finished traces to per-operation files through an
// async background writer.
type Tracer struct {
	dir         string
	mu          sync.Mutex
	files       map[string]*os.File
	buffers     map[string]*bufio.Writer
	traces      chan *Trace
	stopCh      chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
	flushInt    time.Duration
	maxFileSize int64
	bufferSize  int
}

var tracer *Tracer

// InitTracer starts the global tracer. No-op tracing until called.
func InitTracer(dir string, bufferSize, queueCapacity int, flushInterval time.Duration, maxFileSize int64) error {
	t, err := NewTracer(dir, bufferSize, queueCapacity, flushInterval, maxFileSize)
	if err != nil {
		return err
	}
	tracer = t
	return nil
}

// Track starts a trace on the global tracer. Safe to call when tracing
// is disabled; the returned trace is then inert.
func Track(name string) *Trace {
	if tracer == nil {
		return &Trace{Name: name, Start: time.Now(), lastMark: time.Now()}
	}
	return tracer.Track(name)
}

// CloseTracer flushes and stops the global tracer.
func CloseTracer() {
	if tracer != nil {
		tracer.Close()
		tracer = nil
	}
}

// NewTracer creates a tracer writing under dir.
func NewTracer(dir string, bufferSize, queueCapacity int, flushInterval time.Duration, maxFileSize int64) (*Tracer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	t := &Tracer{
		dir:         dir,
		files:       make(map[string]*os.File),
		buffers:     make(map[string]*bufio.Writer),
		traces:      make(chan *Trace, queueCapacity),
		stopCh:      make(chan struct{}),
		flushInt:    flushInterval,
		maxFileSize: maxFileSize,
		bufferSize:  bufferSize,
	}
	t.wg.Add(1)
	go t.writerLoop()
	return t, nil
}

// Track starts a trace bound to this tracer.
func (t *Tracer) Track(name string) *Trace {
	now := time.Now()
	return &Trace{Name: name, Start: now, lastMark: now, tracer: t}
}

// Mark records the time elapsed since the previous mark under label.
func (tr *Trace) Mark(label string) {
	now := time.Now()
	tr.Steps = append(tr.Steps, TraceStep{Name: label, Duration: now.Sub(tr.lastMark).Seconds() * 1000})
	tr.lastMark = now
}

// Finish totals the trace and hands it to the background writer. Safe
// under defer and safe to call more than once; an inert trace is
// discarded. A full queue drops the trace rather than block the caller.
func (tr *Trace) Finish() {
	if tr.tracer == nil {
		return
	}
	tr.TotalMS = time.Since(tr.Start).Seconds() * 1000
	var marked float64
	for _, s := range tr.Steps {
		marked += s.Duration
	}
	if rest := tr.TotalMS - marked; rest > 0.001 {
		tr.Steps = append(tr.Steps, TraceStep{Name: "unmarked", Duration: rest})
	}
	select {
	case tr.tracer.traces <- tr:
	default:
	}
	tr.tracer = nil
}

func (t *Tracer) writerLoop() {
	defer t.wg.Done()
	ticker := time.NewTicker(t.flushInt)
	defer ticker.Stop()

	for {
		select {
		case tr := <-t.traces:
			data, err := json.Marshal(tr)
			if err != nil {
				continue
			}
			t.mu.Lock()
			b := t.bufferFor(tr.Name)
			_, _ = b.Write(data)
			_ = b.WriteByte('\n')
			t.mu.Unlock()

		case <-ticker.C:
			t.mu.Lock()
			for name, b := range t.buffers {
				_ = b.Flush()
				f := t.files[name]
				if fi, err := f.Stat(); err == nil && fi.Size() > t.maxFileSize {
					// recreate oversized files instead of rotating
					path := f.Name()
					f.Close()
					os.Remove(path)
					nf, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
					if err != nil {
						delete(t.files, name)
						delete(t.buffers, name)
						continue
					}
					t.files[name] = nf
					t.buffers[name] = bufio.NewWriterSize(nf, t.bufferSize)
				}
			}
			t.mu.Unlock()

		case <-t.stopCh:
			// drain whatever is queued before flushing
			for {
				select {
				case tr := <-t.traces:
					if data, err := json.Marshal(tr); err == nil {
						t.mu.Lock()
						b := t.bufferFor(tr.Name)
						_, _ = b.Write(data)
						_ = b.WriteByte('\n')
						t.mu.Unlock()
					}
					continue
				default:
				}
				break
			}
			t.mu.Lock()
			for _, b := range t.buffers {
				_ = b.Flush()
			}
			for _, f := range t.files {
				_ = f.Sync()
				_ = f.Close()
			}
			t.mu.Unlock()
			return
		}
	}
}

// bufferFor returns the writer for op, opening its file on first use.
// Caller holds t.mu.
func (t *Tracer) bufferFor(op string) *bufio.Writer {
	if b, ok := t.buffers[op]; ok {
		return b
	}
	path := filepath.Join(t.dir, fmt.Sprintf("%s.jsonl", op))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return bufio.NewWriter(os.Stderr)
	}
	b := bufio.NewWriterSize(f, t.bufferSize)
	t.files[op] = f
	t.buffers[op] = b
	return b
}

// Close stops the background writer after flushing queued traces.
func (t *Tracer) Close() {
	t.stopOnce.Do(func() {
		close(t.stopCh)
		t.wg.Wait()
	})
}

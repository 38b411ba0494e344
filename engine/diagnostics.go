// SPDX-License-Identifier: EPL-2.0

package engine

import (
	"maps"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DiagnosticCapacity is the number of diagnostics an engine remembers.
const DiagnosticCapacity = 64

// Diagnostic is a warning or error the engine reported.
type Diagnostic struct {
	Time    time.Time
	Level   logrus.Level
	Message string
	Fields  logrus.Fields
}

// diagnosticHook keeps the most recent warnings of one engine. Loggers may be
// shared between engines, so entries are matched on the engine field.
type diagnosticHook struct {
	mu     sync.Mutex
	engine string
	ring   []Diagnostic
	next   int
	full   bool
}

func newDiagnosticHook(engine string) *diagnosticHook {
	return &diagnosticHook{
		engine: engine,
		ring:   make([]Diagnostic, DiagnosticCapacity),
	}
}

func (h *diagnosticHook) Levels() []logrus.Level {
	return []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel, logrus.WarnLevel}
}

func (h *diagnosticHook) Fire(entry *logrus.Entry) error {
	if id, _ := entry.Data[engineField].(string); id != h.engine {
		return nil
	}

	fields := maps.Clone(entry.Data)
	delete(fields, engineField)

	h.mu.Lock()
	defer h.mu.Unlock()

	h.ring[h.next] = Diagnostic{
		Time:    entry.Time,
		Level:   entry.Level,
		Message: entry.Message,
		Fields:  fields,
	}
	h.next = (h.next + 1) % len(h.ring)
	if h.next == 0 {
		h.full = true
	}
	return nil
}

// snapshot returns the diagnostics oldest first.
func (h *diagnosticHook) snapshot() []Diagnostic {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.full {
		return append([]Diagnostic(nil), h.ring[:h.next]...)
	}
	out := make([]Diagnostic, 0, len(h.ring))
	out = append(out, h.ring[h.next:]...)
	return append(out, h.ring[:h.next]...)
}

func (h *diagnosticHook) clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	clear(h.ring)
	h.next, h.full = 0, false
}

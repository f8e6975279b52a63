// Package notify provides the notification channels the crop modal reports to.
package notify

import (
	"sync"

	"go.uber.org/zap"

	"github.com/menta2k/image-ingest/internal/logging"
	"github.com/menta2k/image-ingest/pkg/types"
)

// Notifier receives user-facing messages
type Notifier interface {
	Report(message string, severity types.Severity)
}

// Func adapts a plain function to Notifier
type Func func(message string, severity types.Severity)

// Report calls f
func (f Func) Report(message string, severity types.Severity) { f(message, severity) }

// LogNotifier writes notifications to a zap logger
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a LogNotifier. A nil logger discards everything.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logging.OrNop(logger).Named("notify")}
}

// Report logs message at the level matching severity
func (n *LogNotifier) Report(message string, severity types.Severity) {
	field := zap.String("severity", string(severity))
	switch severity {
	case types.SeverityError:
		n.logger.Error(message, field)
	case types.SeverityWarning:
		n.logger.Warn(message, field)
	default:
		n.logger.Info(message, field)
	}
}

// Notification is one recorded report
type Notification struct {
	Message  string
	Severity types.Severity
}

// Recorder keeps every report in memory
type Recorder struct {
	mu    sync.Mutex
	items []Notification
}

// Report records the notification
func (r *Recorder) Report(message string, severity types.Severity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, Notification{Message: message, Severity: severity})
}

// All returns a copy of the recorded notifications
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.items...)
}

// Last returns the most recent notification
func (r *Recorder) Last() (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) == 0 {
		return Notification{}, false
	}
	return r.items[len(r.items)-1], true
}

// Count returns the number of notifications with the given severity
func (r *Recorder) Count(severity types.Severity) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, it := range r.items {
		if it.Severity == severity {
			n++
		}
	}
	return n
}

// Multi fans a report out to several notifiers
type Multi []Notifier

// Report forwards to every non-nil notifier in order
func (m Multi) Report(message string, severity types.Severity) {
	for _, n := range m {
		if n != nil {
			n.Report(message, severity)
		}
	}
}

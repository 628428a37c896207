package logging

import (
	"fmt"
	"sync"
	"time"

	"jordanella.com/autoclick-go/internal/events"
)

// ErrorCategory groups errors by the search stage that produced them
type ErrorCategory string

const (
	ErrorCategoryConfiguration ErrorCategory = "configuration"
	ErrorCategoryCapture       ErrorCategory = "capture"
	ErrorCategoryScoring       ErrorCategory = "scoring"
	ErrorCategoryAction        ErrorCategory = "action"
	ErrorCategoryTimeout       ErrorCategory = "timeout"
	ErrorCategoryJournal       ErrorCategory = "journal"
	ErrorCategorySystem        ErrorCategory = "system"
)

// AllCategories lists every category in reporting order
var AllCategories = []ErrorCategory{
	ErrorCategoryConfiguration,
	ErrorCategoryCapture,
	ErrorCategoryScoring,
	ErrorCategoryAction,
	ErrorCategoryTimeout,
	ErrorCategoryJournal,
	ErrorCategorySystem,
}

// ErrorSeverity ranks how much an error affects a search
type ErrorSeverity string

const (
	ErrorSeverityLow      ErrorSeverity = "low"
	ErrorSeverityMedium   ErrorSeverity = "medium"
	ErrorSeverityHigh     ErrorSeverity = "high"
	ErrorSeverityCritical ErrorSeverity = "critical"
)

func (s ErrorSeverity) rank() int {
	switch s {
	case ErrorSeverityMedium:
		return 1
	case ErrorSeverityHigh:
		return 2
	case ErrorSeverityCritical:
		return 3
	}
	return 0
}

// AtLeast reports whether s is as severe as other
func (s ErrorSeverity) AtLeast(other ErrorSeverity) bool {
	return s.rank() >= other.rank()
}

// defaultHistory bounds the in-memory report ring
const defaultHistory = 256

// ErrorReport is one recorded error
type ErrorReport struct {
	Timestamp   time.Time              `json:"timestamp"`
	Category    ErrorCategory          `json:"category"`
	Severity    ErrorSeverity          `json:"severity"`
	Component   string                 `json:"component"`
	Message     string                 `json:"message"`
	Error       error                  `json:"-"`
	Context     map[string]interface{} `json:"context,omitempty"`
	Recoverable bool                   `json:"recoverable"`
}

// ErrorStats summarises the reports currently held
type ErrorStats struct {
	Total         int
	Unrecoverable int
	BySeverity    map[ErrorSeverity]int
	ByCategory    map[ErrorCategory]int
}

// ErrorCallback is called for reports at or above its registered severity
type ErrorCallback func(report *ErrorReport)

type subscriber struct {
	min ErrorSeverity
	fn  ErrorCallback
}

// ErrorReporter collects recoverable search errors: capture failures, scoring
// faults, input failures and journal writes. None of them change a search outcome.
type ErrorReporter struct {
	logger *Logger

	mu      sync.RWMutex
	ring    []*ErrorReport
	next    int
	full    bool
	subs    []subscriber
	bus     events.EventBus
	busFrom ErrorSeverity
}

// NewErrorReporterWithLogger creates a reporter writing through logger
func NewErrorReporterWithLogger(logger *Logger) *ErrorReporter {
	return newErrorReporter(logger, defaultHistory)
}

func newErrorReporter(logger *Logger, size int) *ErrorReporter {
	if size < 1 {
		size = 1
	}
	return &ErrorReporter{logger: logger, ring: make([]*ErrorReport, size)}
}

// PublishTo forwards reports at medium severity or above to bus as error events.
// Pass nil to detach. Lower severities stay local so bus dispatch failures,
// which are reported at low severity, cannot feed back into the bus.
func (er *ErrorReporter) PublishTo(bus events.EventBus) {
	er.mu.Lock()
	defer er.mu.Unlock()
	er.bus = bus
	er.busFrom = ErrorSeverityMedium
}

// Report records a fully populated report
func (er *ErrorReporter) Report(report *ErrorReport) {
	if report.Timestamp.IsZero() {
		report.Timestamp = time.Now()
	}
	er.log(report)

	er.mu.Lock()
	er.ring[er.next] = report
	er.next = (er.next + 1) % len(er.ring)
	if er.next == 0 {
		er.full = true
	}
	var notify []ErrorCallback
	for _, s := range er.subs {
		if report.Severity.AtLeast(s.min) {
			notify = append(notify, s.fn)
		}
	}
	bus := er.bus
	publish := bus != nil && report.Severity.AtLeast(er.busFrom)
	er.mu.Unlock()

	for _, fn := range notify {
		go er.call(fn, report)
	}
	if publish {
		err := report.Error
		if err == nil {
			err = fmt.Errorf("%s", report.Message)
		}
		ctx := map[string]interface{}{
			"category": string(report.Category),
			"severity": string(report.Severity),
			"message":  report.Message,
		}
		for k, v := range report.Context {
			ctx[k] = v
		}
		bus.Publish(events.NewErrorEvent("errors", report.Component, err, ctx))
	}
}

// ReportError records a recoverable error
func (er *ErrorReporter) ReportError(category ErrorCategory, severity ErrorSeverity, component, message string, err error) {
	er.ReportErrorWithContext(category, severity, component, message, err, nil)
}

// ReportErrorWithContext records a recoverable error with extra fields
func (er *ErrorReporter) ReportErrorWithContext(category ErrorCategory, severity ErrorSeverity, component, message string, err error, context map[string]interface{}) {
	er.Report(&ErrorReport{
		Category:    category,
		Severity:    severity,
		Component:   component,
		Message:     message,
		Error:       err,
		Context:     context,
		Recoverable: true,
	})
}

// ReportCriticalError records an error that stops the current operation
func (er *ErrorReporter) ReportCriticalError(category ErrorCategory, component, message string, err error, context map[string]interface{}) {
	er.Report(&ErrorReport{
		Category:  category,
		Severity:  ErrorSeverityCritical,
		Component: component,
		Message:   message,
		Error:     err,
		Context:   context,
	})
}

func (er *ErrorReporter) log(report *ErrorReport) {
	fields := make(map[string]interface{}, len(report.Context)+3)
	for k, v := range report.Context {
		fields[k] = v
	}
	fields["category"] = string(report.Category)
	fields["severity"] = string(report.Severity)
	fields["reporter"] = report.Component

	switch report.Severity {
	case ErrorSeverityCritical, ErrorSeverityHigh:
		er.logger.ErrorWithContext(report.Message, report.Error, fields)
	case ErrorSeverityMedium:
		if report.Error != nil {
			fields["error"] = report.Error.Error()
		}
		er.logger.WarnWithContext(report.Message, fields)
	default:
		if report.Error != nil {
			fields["error"] = report.Error.Error()
		}
		er.logger.DebugWithContext(report.Message, fields)
	}
}

func (er *ErrorReporter) call(fn ErrorCallback, report *ErrorReport) {
	defer func() {
		if r := recover(); r != nil {
			er.logger.ErrorWithContext("error callback panicked", fmt.Errorf("%v", r), map[string]interface{}{
				"category": string(report.Category),
			})
		}
	}()
	fn(report)
}

// OnError registers fn for reports at or above min severity
func (er *ErrorReporter) OnError(min ErrorSeverity, fn ErrorCallback) {
	er.mu.Lock()
	defer er.mu.Unlock()
	er.subs = append(er.subs, subscriber{min: min, fn: fn})
}

// history returns held reports oldest first; caller holds the read lock
func (er *ErrorReporter) history() []*ErrorReport {
	if !er.full {
		return er.ring[:er.next]
	}
	out := make([]*ErrorReport, 0, len(er.ring))
	out = append(out, er.ring[er.next:]...)
	return append(out, er.ring[:er.next]...)
}

// GetRecentErrors returns up to n reports, oldest first
func (er *ErrorReporter) GetRecentErrors(n int) []*ErrorReport {
	er.mu.RLock()
	defer er.mu.RUnlock()

	all := er.history()
	if n > len(all) {
		n = len(all)
	}
	return append([]*ErrorReport(nil), all[len(all)-n:]...)
}

// GetErrorsByCategory returns up to limit reports of category, newest first
func (er *ErrorReporter) GetErrorsByCategory(category ErrorCategory, limit int) []*ErrorReport {
	er.mu.RLock()
	defer er.mu.RUnlock()

	all := er.history()
	var out []*ErrorReport
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		if all[i].Category == category {
			out = append(out, all[i])
		}
	}
	return out
}

// Stats counts held reports; every category and severity has an entry
func (er *ErrorReporter) Stats() ErrorStats {
	er.mu.RLock()
	defer er.mu.RUnlock()

	stats := ErrorStats{
		BySeverity: map[ErrorSeverity]int{
			ErrorSeverityLow: 0, ErrorSeverityMedium: 0, ErrorSeverityHigh: 0, ErrorSeverityCritical: 0,
		},
		ByCategory: make(map[ErrorCategory]int, len(AllCategories)),
	}
	for _, c := range AllCategories {
		stats.ByCategory[c] = 0
	}
	for _, r := range er.history() {
		stats.Total++
		stats.BySeverity[r.Severity]++
		stats.ByCategory[r.Category]++
		if !r.Recoverable {
			stats.Unrecoverable++
		}
	}
	return stats
}

// Clear drops all held reports
func (er *ErrorReporter) Clear() {
	er.mu.Lock()
	defer er.mu.Unlock()
	er.ring = make([]*ErrorReport, len(er.ring))
	er.next, er.full = 0, false
}

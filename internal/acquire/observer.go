package acquire

import (
	"jordanella.com/autoclick-go/internal/events"
)

// Observer receives search diagnostics. Calls happen synchronously on the
// loop goroutine, only after an iteration has been fully scored.
type Observer interface {
	SearchStarted(info SearchInfo)
	IterationCompleted(report IterationReport)
	SearchFinished(result Result)
}

// ObserverFuncs adapts plain functions to Observer; nil fields are skipped
type ObserverFuncs struct {
	OnStart     func(SearchInfo)
	OnIteration func(IterationReport)
	OnFinish    func(Result)
}

func (o ObserverFuncs) SearchStarted(info SearchInfo) {
	if o.OnStart != nil {
		o.OnStart(info)
	}
}

func (o ObserverFuncs) IterationCompleted(report IterationReport) {
	if o.OnIteration != nil {
		o.OnIteration(report)
	}
}

func (o ObserverFuncs) SearchFinished(result Result) {
	if o.OnFinish != nil {
		o.OnFinish(result)
	}
}

// EventPublisher forwards search progress to an event bus
type EventPublisher struct {
	bus events.EventBus
}

// NewEventPublisher creates an observer publishing to bus
func NewEventPublisher(bus events.EventBus) *EventPublisher {
	return &EventPublisher{bus: bus}
}

func (p *EventPublisher) SearchStarted(info SearchInfo) {
	p.bus.Publish(events.NewSearchStartedEvent(info.RunID, len(info.Templates), len(info.Monitors), info.Config.Threshold))
}

func (p *EventPublisher) IterationCompleted(report IterationReport) {
	p.bus.Publish(events.NewSearchIterationEvent(report.RunID, report.Number, report.BestScore(), report.Captured, report.CaptureFailures))
}

func (p *EventPublisher) SearchFinished(result Result) {
	switch result.State {
	case StateActing:
		p.bus.Publish(events.NewSearchMatchedEvent(result.RunID, result.Best.Template, result.Best.MonitorIndex,
			result.Center.X, result.Center.Y, result.BestScore))
		if result.ActionErr != nil {
			p.bus.Publish(events.NewActionFailedEvent(result.RunID, result.ActionErr))
		}
	case StateAborted:
		p.bus.Publish(events.NewSearchAbortedEvent(result.RunID, result.Iterations))
	default:
		p.bus.Publish(events.NewSearchExpiredEvent(result.RunID, result.BestScore, result.Iterations, result.Elapsed))
	}
}

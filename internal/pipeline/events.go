package pipeline

// EventStatus labels a progress event.
type EventStatus string

const (
	EventRunning   EventStatus = "running"
	EventPassed    EventStatus = "passed"
	EventFailed    EventStatus = "failed"
	EventError     EventStatus = "error"
	EventCancelled EventStatus = "cancelled"
	EventComplete  EventStatus = "complete"
)

// ProgressEvent is one entry in the batch progress stream. The final event of
// a batch carries Status "complete" and Total; per-product events carry the
// SKU and, for terminal statuses, the final score and attempt count.
type ProgressEvent struct {
	SKU     string      `json:"sku,omitempty"`
	Status  EventStatus `json:"status"`
	Score   *float64    `json:"score,omitempty"`
	Attempt int         `json:"attempt,omitempty"`
	Message string      `json:"message,omitempty"`
	Total   int         `json:"total,omitempty"`
}

// terminalEvent maps a finished run to its progress event.
func terminalEvent(run *ProductRun) ProgressEvent {
	event := ProgressEvent{SKU: run.SKU, Attempt: len(run.History)}

	switch run.State {
	case StatePassed:
		event.Status = EventPassed
	case StateFailed:
		event.Status = EventFailed
	case StateCancelled:
		event.Status = EventCancelled
	default:
		event.Status = EventError
		event.Message = run.Error
	}

	if len(run.History) > 0 {
		score := run.FinalScore()
		event.Score = &score
	}
	return event
}

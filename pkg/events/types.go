package events

import "encoding/json"

// Event name constants
const (
	JobPhase   = "job.phase"
	JobAction  = "job.action"
	TempSample = "temp.sample"
)

// Event is a generic SSE event from the daemon.
type Event struct {
	Name string          // SSE event name
	Data json.RawMessage // Raw JSON payload
}

// JobPhaseEvent is the typed payload for job.phase.
type JobPhaseEvent struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Message string `json:"message,omitempty"`
	Ts      int64  `json:"ts"`
}

// JobActionEvent is the typed payload for job.action. Action is one of
// start, stop, pause, resume, finish.
type JobActionEvent struct {
	Action  string `json:"action"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message,omitempty"`
	Ts      int64  `json:"ts"`
}

// TempSampleEvent is the typed payload for temp.sample.
type TempSampleEvent struct {
	Kelvin        float64 `json:"kelvin"`
	HeaterPercent float64 `json:"heaterPercent"`
	Ts            int64   `json:"ts"`
}

// DecodeAs decodes the event payload into the caller-specified generic type T.
// It ignores the event name and simply unmarshals Data into T. If Data is empty,
// it returns the zero value of T with a nil error.
//
// Example:
//
//	payload, err := events.DecodeAs[events.JobPhaseEvent](ev)
//	if err != nil { /* handle */ }
//	fmt.Println(payload.From, payload.To)
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}

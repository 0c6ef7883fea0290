package bus

import (
	"time"

	"github.com/dotsetgreg/dotpersona/pkg/evaluation"
	"github.com/dotsetgreg/dotpersona/pkg/personality"
)

// TurnRequest is one inbound user message. When Response is set the turn is
// only evaluated; otherwise it is adapted, answered and evaluated.
type TurnRequest struct {
	ID         string        `json:"id"`
	Source     string        `json:"source"`
	UserID     string        `json:"user_id"`
	Message    string        `json:"message"`
	Response   string        `json:"response,omitempty"`
	Latency    time.Duration `json:"latency,omitempty"`
	ReceivedAt time.Time     `json:"received_at"`
}

type TurnResult struct {
	RequestID    string             `json:"request_id"`
	TurnID       string             `json:"turn_id"`
	Source       string             `json:"source"`
	UserID       string             `json:"user_id"`
	ResponseText string             `json:"response_text"`
	Deltas       personality.Deltas `json:"evolution_deltas"`
	Vector       personality.Vector `json:"updated_vector"`
	Evaluation   *evaluation.Result `json:"evaluation,omitempty"`
	Degraded     bool               `json:"degraded,omitempty"`
	Error        string             `json:"error,omitempty"`
}

// ResultHandler delivers results back to the source that sent the request.
type ResultHandler func(TurnResult)

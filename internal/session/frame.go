package session

import (
	"github.com/Milix-M/DeepReSearch/internal/restapi"
)

// Frame types delivered over the research WebSocket.
const (
	FrameThreadStarted = "thread_started"
	FrameEvent         = "event"
	FrameInterrupt     = "interrupt"
	FrameComplete      = "complete"
	FrameError         = "error"
)

// Frame is one discriminated message from the server stream.
type Frame struct {
	Type      string             `json:"type"`
	ThreadID  string             `json:"thread_id,omitempty"`
	Payload   map[string]any     `json:"payload,omitempty"`
	Interrupt *restapi.Interrupt `json:"interrupt,omitempty"`
	State     map[string]any     `json:"state,omitempty"`
	Message   string             `json:"message,omitempty"`
}

// Decision is the resume answer sent to a pending interrupt.
//
// The wire literals are inverted relative to their plain reading and must be
// preserved exactly: "n" approves the plan as-is, "y" submits an edited plan.
type Decision string

const (
	DecisionApprove Decision = "n"
	DecisionEdit    Decision = "y"
)

// startCommand opens a research session for a query.
type startCommand struct {
	Query string `json:"query"`
}

// resumeCommand answers a pending interrupt. Plan is nil for plain approval.
type resumeCommand struct {
	Decision Decision `json:"decision"`
	Plan     any      `json:"plan"`
}

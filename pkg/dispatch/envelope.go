package dispatch

import (
	"time"

	"github.com/google/uuid"

	"github.com/deploything/agent/pkg/types"
)

// Envelope carries one decoded command and the reply its sender waits on.
// ID exists only to correlate log lines. Received marks when the command
// came off the wire, so the dispatcher can log how long it queued.
type Envelope struct {
	ID       string
	Command  types.Command
	Reply    *Reply
	Received time.Time
}

// NewEnvelope wraps cmd with a fresh reply
func NewEnvelope(cmd types.Command) *Envelope {
	return &Envelope{
		ID:       uuid.NewString(),
		Command:  cmd,
		Reply:    NewReply(),
		Received: time.Now(),
	}
}

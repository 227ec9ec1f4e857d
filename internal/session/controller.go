package session

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/hollisb/micgrab/internal/ipc"
)

// Controller adapts a Session to the IPC command surface. Errors crossing
// this boundary are flattened to their message strings.
type Controller struct {
	session *Session
}

// NewController wraps an existing session for IPC serving.
func NewController(session *Session) *Controller {
	return &Controller{session: session}
}

// Handle serves one IPC command against the owning process's session.
func (c *Controller) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case "status":
		return ipc.Response{OK: true, State: string(c.session.State()), Message: "status"}
	case "supported":
		return ipc.Response{
			OK:      true,
			State:   string(c.session.State()),
			Message: strconv.FormatBool(c.session.Supported()),
		}
	case "start":
		// A finished cycle means the owner process is on its way out; a
		// capture started now would be orphaned when it exits.
		if done := c.session.Done(); done != nil {
			select {
			case <-done:
				return ipc.Response{OK: false, State: string(c.session.State()), Error: "capture owner is shutting down"}
			default:
			}
		}
		maxDuration := time.Duration(req.MaxDurationSeconds) * time.Second
		if err := c.session.Start(ctx, maxDuration); err != nil {
			return ipc.Response{OK: false, State: string(c.session.State()), Error: err.Error()}
		}
		return ipc.Response{OK: true, State: string(c.session.State()), Message: "capture started"}
	case "stop":
		result, err := c.session.Stop(ctx)
		if err != nil {
			return ipc.Response{OK: false, State: string(c.session.State()), Error: err.Error()}
		}
		return ipc.Response{OK: true, State: string(c.session.State()), Result: result, Message: "capture stopped"}
	default:
		return ipc.Response{OK: false, State: string(c.session.State()), Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}
}

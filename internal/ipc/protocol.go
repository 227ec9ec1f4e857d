package ipc

// Request is one command sent to the capture owner process. Max duration is
// only meaningful for the start command.
type Request struct {
	Command            string `json:"command"`
	MaxDurationSeconds uint32 `json:"max_duration_seconds,omitempty"`
}

// Response carries the flattened outcome: session state plus either a result
// payload or a human-readable error string.
type Response struct {
	OK      bool   `json:"ok"`
	State   string `json:"state,omitempty"`
	Result  string `json:"result,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

package job

import (
	"encoding/json"
	"fmt"
)

// TriggerOptions names a trigger event and carries its payload. It is also
// the body of every dispatch request.
type TriggerOptions struct {
	Name    string          `json:"name" binding:"required"`
	Payload json.RawMessage `json:"payload"`
}

// Canonical returns the bytes that are signed and sent over the wire.
// Encoding the parsed options again yields the same bytes, so the receiver
// can verify a signature without access to the raw request body.
func (o TriggerOptions) Canonical() ([]byte, error) {
	if len(o.Payload) == 0 {
		o.Payload = json.RawMessage("null")
	}
	b, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("job: encode trigger options %q: %w", o.Name, err)
	}
	return b, nil
}

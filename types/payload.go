package types

// Payload is the opaque structured data exchanged with agent capabilities.
// The schema of a payload is owned by the agent that produces or consumes it;
// the orchestration core only moves payloads between steps.
type Payload map[string]any

// Clone returns a shallow copy of the payload.
// Nested values are shared; callers that mutate nested structures must copy
// them separately.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Merge copies every entry of other into p, overwriting existing keys.
func (p Payload) Merge(other Payload) {
	for k, v := range other {
		p[k] = v
	}
}

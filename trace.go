package contextl

import (
	"encoding/json"
)

// Trace captures which layered methods ran for a single operation call.
type Trace struct {
	Operation string   `json:"operation"`
	Stack     []string `json:"stack"`
	Steps     []Step   `json:"steps"`
	Err       string   `json:"error,omitempty"`
}

// Step is one executed method. Layer is empty for the default primary.
type Step struct {
	Qualifier Qualifier `json:"qualifier"`
	Layer     string    `json:"layer,omitempty"`
}

func (t *Trace) record(q Qualifier, layer *Layer) {
	if t == nil {
		return
	}
	t.Steps = append(t.Steps, Step{Qualifier: q, Layer: layer.Name()})
}

// ToJSON serialises the trace into JSON for logging or transport helpers.
func (t Trace) ToJSON() ([]byte, error) {
	type alias Trace
	return json.Marshal(alias(t))
}

// TraceFromJSON deserialises a JSON payload that was previously generated via
// ToJSON.
func TraceFromJSON(payload []byte) (Trace, error) {
	type alias Trace
	var trace alias
	if err := json.Unmarshal(payload, &trace); err != nil {
		return Trace{}, err
	}
	return Trace(trace), nil
}

package models

// Decision is the result of consulting the reasoning oracle. It is not
// persisted on its own; it is embedded into whichever task or incident
// recorded it.
type Decision struct {
	// Action is the chosen option's action identifier.
	Action string `json:"action"`
	// Reasoning explains why the action was chosen.
	Reasoning string `json:"reasoning"`
	// Confidence is the oracle's confidence in the action, in [0, 1].
	Confidence float64 `json:"confidence"`
	// Metadata carries extra structured data returned with the decision.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Fallback returns true if this decision was produced because the oracle
// call failed rather than from an actual oracle response.
func (d Decision) Fallback() bool {
	return d.Action == "fallback"
}

// DecisionOption is one enumerated choice offered to the oracle.
type DecisionOption struct {
	// Action is the identifier the oracle echoes back when choosing this option.
	Action string `json:"action"`
	// Description tells the oracle what the action does.
	Description string `json:"description"`
}

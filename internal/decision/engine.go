// Package decision implements the decision engine: it turns a context object
// and an enumerated option set into an action, a rationale, and a confidence
// score by consulting the reasoning oracle.
package decision

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opspilot/opspilot/internal/oracle"
	"github.com/opspilot/opspilot/pkg/models"
)

// DefaultTimeout bounds a single oracle consultation. The oracle call is
// network-bound and has no latency guarantee of its own.
const DefaultTimeout = 30 * time.Second

// Engine consults the reasoning oracle for remediation decisions.
// Decide never returns an error: oracle failures become low-confidence
// fallback decisions, which is the uniform failure signal handlers consume.
type Engine struct {
	oracle  oracle.Oracle
	timeout time.Duration
}

// NewEngine creates a decision engine backed by the given oracle.
// A non-positive timeout falls back to DefaultTimeout.
func NewEngine(o oracle.Oracle, timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Engine{oracle: o, timeout: timeout}
}

// decisionRequest is the structured request sent to the oracle.
type decisionRequest struct {
	Domain  models.DomainType       `json:"domain"`
	Config  map[string]any          `json:"agent_config,omitempty"`
	Context map[string]any          `json:"context"`
	Options []models.DecisionOption `json:"options"`
}

// decisionResponse is the structured response expected from the oracle.
// Fields are pointers so missing keys can be told apart from zero values.
type decisionResponse struct {
	Action     *string        `json:"action"`
	Reasoning  *string        `json:"reasoning"`
	Confidence *float64       `json:"confidence"`
	Metadata   map[string]any `json:"metadata"`
}

// systemFraming returns the domain-specific system prompt for the oracle.
func systemFraming(domain models.DomainType) string {
	var role string
	switch domain {
	case models.DomainReliability:
		role = "a site reliability engineer responsible for uptime and incident response"
	case models.DomainSecurity:
		role = "a security engineer responsible for vulnerability management and patching"
	case models.DomainPerformance:
		role = "a performance engineer responsible for resource efficiency and scaling"
	case models.DomainDeployment:
		role = "a release engineer responsible for safe rollouts and rollbacks"
	default:
		role = "an operations engineer"
	}

	return fmt.Sprintf(`You are %s for a cloud platform.
You will receive a JSON object with the current context and a closed list of options.
Choose exactly one option. Respond with only a JSON object of the form:
{"action": "<option action>", "reasoning": "<2-3 sentences>", "confidence": <0.0-1.0>}
Do not include any other text.`, role)
}

// Decide consults the oracle and returns its decision. Any oracle failure
// (timeout, transport error, malformed response) is converted into an
// {action:"fallback", confidence:0.1} decision carrying the error in
// metadata; the caller never sees an error from this call.
func (e *Engine) Decide(ctx context.Context, agent *models.Agent, decCtx map[string]any, options []models.DecisionOption) models.Decision {
	req := decisionRequest{
		Domain:  agent.Domain,
		Config:  agent.Config,
		Context: decCtx,
		Options: options,
	}

	prompt, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return fallbackDecision(fmt.Errorf("marshal decision request: %w", err))
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	raw, err := e.oracle.Ask(callCtx, systemFraming(agent.Domain), string(prompt))
	if err != nil {
		return fallbackDecision(err)
	}

	var resp decisionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fallbackDecision(fmt.Errorf("parse oracle response: %w", err))
	}

	return resp.toDecision()
}

// toDecision converts a parsed response into a Decision, filling safe
// defaults for missing fields and clamping confidence to [0, 1].
func (r decisionResponse) toDecision() models.Decision {
	d := models.Decision{
		Action:     "no-action",
		Reasoning:  "No reasoning provided",
		Confidence: 0.5,
		Metadata:   r.Metadata,
	}

	if r.Action != nil && *r.Action != "" {
		d.Action = *r.Action
	}
	if r.Reasoning != nil && *r.Reasoning != "" {
		d.Reasoning = *r.Reasoning
	}
	if r.Confidence != nil {
		d.Confidence = clamp01(*r.Confidence)
	}
	return d
}

// fallbackDecision is the uniform failure signal for oracle problems.
func fallbackDecision(err error) models.Decision {
	return models.Decision{
		Action:     "fallback",
		Reasoning:  "Oracle consultation failed; taking no autonomous action",
		Confidence: 0.1,
		Metadata:   map[string]any{"error": err.Error()},
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

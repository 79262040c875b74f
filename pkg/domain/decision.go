package domain

// Outcome is the single governance result produced by decision fusion.
type Outcome string

const (
	// OutcomeApproved means all evaluators responded OK with passing
	// verdicts and legal risk was LOW or MEDIUM.
	OutcomeApproved Outcome = "APPROVED"
	// OutcomeVetoed means at least one OK evaluator vetoed.
	OutcomeVetoed Outcome = "VETOED"
	// OutcomeRejected means the legal-risk evaluator reported HIGH or
	// CRITICAL exposure; this overrides every other verdict.
	OutcomeRejected Outcome = "REJECTED"
	// OutcomeRequiresRemediation means the evaluation was incomplete: at
	// least one evaluator did not return a usable result.
	OutcomeRequiresRemediation Outcome = "REQUIRES_REMEDIATION"
)

// Outcomes returns all governance outcomes in presentation order.
func Outcomes() []Outcome {
	return []Outcome{
		OutcomeApproved,
		OutcomeVetoed,
		OutcomeRejected,
		OutcomeRequiresRemediation,
	}
}

// GovernanceDecision is the fused result for one evaluation request. The
// outcome is a pure function of Results and the fusion policy; it carries
// no hidden state.
type GovernanceDecision struct {
	RequestID string  `json:"request_id"`
	Outcome   Outcome `json:"outcome"`
	Reason    string  `json:"reason"`
	// DrivenBy names the evaluator(s) whose results determined the
	// outcome, in canonical role order. Empty for APPROVED.
	DrivenBy []EvaluatorRole   `json:"driven_by,omitempty"`
	Results  []EvaluatorResult `json:"results"`
}

// Result returns the result for the given role, if present.
func (d *GovernanceDecision) Result(role EvaluatorRole) (EvaluatorResult, bool) {
	for _, r := range d.Results {
		if r.Role == role {
			return r, true
		}
	}
	return EvaluatorResult{}, false
}

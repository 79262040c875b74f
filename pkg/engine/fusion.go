package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/arbiterai/arbiter-oss/pkg/domain"
)

// Fuse applies the decision-fusion policy to one normalized result set and
// produces exactly one governance outcome. It is a pure function: the same
// result set, in any order, always yields the identical decision.
//
// Rules are evaluated in strict precedence order and the first match wins.
// This ordering is the core business contract and must not change:
//
//  1. Legal-risk result OK with HIGH or CRITICAL exposure: REJECTED,
//     overriding every other verdict.
//  2. Any OK result with a VETO verdict: VETOED, naming every vetoing
//     evaluator, not just the first.
//  3. Any non-OK status: REQUIRES_REMEDIATION. An incomplete evaluation is
//     never treated as a pass. A legal-risk evaluator that was unreachable
//     lands here, not in rule 1.
//  4. Otherwise: APPROVED.
func Fuse(requestID string, results []domain.EvaluatorResult) domain.GovernanceDecision {
	decision := domain.GovernanceDecision{
		RequestID: requestID,
		Results:   orderResults(results),
	}

	// Rule 1: legal risk is a hard stop.
	for _, r := range decision.Results {
		if r.Role == domain.RoleLegal && r.OK() && r.Risk.Blocking() {
			decision.Outcome = domain.OutcomeRejected
			decision.DrivenBy = []domain.EvaluatorRole{r.Role}
			decision.Reason = fmt.Sprintf("legal risk %s: %s", r.Risk, r.Detail)
			return decision
		}
	}

	// Rule 2: threshold vetoes, all of them.
	var vetoers []domain.EvaluatorRole
	for _, r := range decision.Results {
		if r.Role != domain.RoleLegal && r.OK() && r.Verdict == domain.VerdictVeto {
			vetoers = append(vetoers, r.Role)
		}
	}
	if len(vetoers) > 0 {
		decision.Outcome = domain.OutcomeVetoed
		decision.DrivenBy = vetoers
		decision.Reason = "vetoed by " + joinRoles(vetoers)
		return decision
	}

	// Rule 3: an incomplete evaluation requires remediation.
	var missing []domain.EvaluatorRole
	for _, r := range decision.Results {
		if !r.OK() {
			missing = append(missing, r.Role)
		}
	}
	if len(missing) > 0 {
		decision.Outcome = domain.OutcomeRequiresRemediation
		decision.DrivenBy = missing
		decision.Reason = "incomplete evaluation: no usable result from " + joinRoles(missing)
		return decision
	}

	// Rule 4: everything passed.
	decision.Outcome = domain.OutcomeApproved
	decision.Reason = "all evaluators passed"
	return decision
}

// orderResults copies the results into canonical role order so the decision
// is identical for any permutation of the input set.
func orderResults(results []domain.EvaluatorResult) []domain.EvaluatorResult {
	ordered := make([]domain.EvaluatorResult, len(results))
	copy(ordered, results)
	rank := make(map[domain.EvaluatorRole]int, 5)
	for i, role := range domain.Roles() {
		rank[role] = i
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return rank[ordered[i].Role] < rank[ordered[j].Role]
	})
	return ordered
}

func joinRoles(roles []domain.EvaluatorRole) string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return strings.Join(names, ", ")
}

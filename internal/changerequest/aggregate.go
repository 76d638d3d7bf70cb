package changerequest

import "hr-suite/internal/workflow"

// Aggregate folds approver decisions into one outcome.
// Any pending decision keeps the request open. Once all are decided, a single
// rejection wins. The result does not depend on decision order.
// A request without decisions is never final.
func Aggregate(decisions []workflow.ApprovalDecision) (workflow.Status, bool) {
	if len(decisions) == 0 {
		return workflow.StatusUnderReview, false
	}
	rejected := false
	for _, d := range decisions {
		switch d.Decision {
		case workflow.DecisionPending:
			return workflow.StatusUnderReview, false
		case workflow.DecisionRejected:
			rejected = true
		}
	}
	if rejected {
		return workflow.StatusRejected, true
	}
	return workflow.StatusApproved, true
}

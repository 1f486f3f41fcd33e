package classifier

import "civicdispatch-be/models"

// Decision thresholds for the priority policy. All are interval edges that
// change the outcome exactly at the boundary.
const (
	urgentThreshold     = 0.70
	urgentLeanThreshold = 0.50
	highThreshold       = 0.60
	tiltZoneLow         = 0.40
	tiltUrgentSplit     = 0.55
	lowConfidenceFloor  = 0.45
)

// safetyTiltCategories are risk-sensitive departments where a borderline
// urgent score must surface to a human instead of being rounded down.
var safetyTiltCategories = map[string]bool{
	models.DeptSafety:      true,
	models.DeptElectricity: true,
	models.DeptRoads:       true,
}

// Decide converts normalized classifier probabilities into the final priority
// label and manual-review flag. Pure function of its inputs; missing labels
// count as probability 0.
func Decide(category string, probs map[string]float64) Result {
	urgentProb := probs["urgent"]
	highProb := probs["high"]
	normalProb := probs["normal"]

	maxProb := urgentProb
	if highProb > maxProb {
		maxProb = highProb
	}
	if normalProb > maxProb {
		maxProb = normalProb
	}

	var priority models.IssuePriority
	switch {
	case urgentProb >= urgentThreshold:
		priority = models.PriorityUrgent
	case urgentProb >= urgentLeanThreshold || highProb >= highThreshold:
		priority = models.PriorityHigh
	default:
		priority = models.PriorityNormal
	}

	manualReview := false
	if safetyTiltCategories[category] && urgentProb >= tiltZoneLow && urgentProb < urgentThreshold {
		if urgentProb >= tiltUrgentSplit {
			priority = models.PriorityUrgent
		} else {
			priority = models.PriorityHigh
		}
		manualReview = true
	}

	// The model's top-1 pick is not trustworthy enough to act on unattended.
	if maxProb < lowConfidenceFloor {
		manualReview = true
	}

	confidence := maxProb
	if p, ok := probs[string(priority)]; ok && p > 0 {
		confidence = p
	}

	return Result{
		Priority:     priority,
		Confidence:   confidence,
		Probs:        probs,
		ManualReview: manualReview,
	}
}

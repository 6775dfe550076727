package verdict

// Confidence is the trust level assigned to an experiment readout
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Action returns the recommended decision for a confidence level
func (c Confidence) Action() string {
	switch c {
	case ConfidenceHigh:
		return "act on the result"
	case ConfidenceMedium:
		return "proceed with caution or extend the run"
	default:
		return "decision blocked"
	}
}

// CheckName identifies one audit check
type CheckName string

const (
	CheckSampleSufficiency CheckName = "sample_sufficiency"
	CheckPowerSufficiency  CheckName = "power_sufficiency"
	CheckSignificance      CheckName = "significance"
)

// Check is the outcome of a single weighted audit check
type Check struct {
	Name        CheckName `json:"name"`
	Passed      bool      `json:"passed"`
	Weight      int       `json:"weight"`
	Explanation string    `json:"explanation"`
}

// AuditResult is recomputed on every audit call and never mutated afterwards
type AuditResult struct {
	Score      int        `json:"score"`
	Checks     []Check    `json:"checks"`
	Confidence Confidence `json:"confidence"`
	Action     string     `json:"action"`
}

// Passed reports whether the named check passed
func (r AuditResult) Passed(name CheckName) bool {
	for _, c := range r.Checks {
		if c.Name == name {
			return c.Passed
		}
	}
	return false
}

package domain

// Comparison describes how a criterion value is checked against its target
type Comparison string

const (
	AtLeast     Comparison = "at_least"
	GreaterThan Comparison = "greater_than"
	LessThan    Comparison = "less_than"
)

// Unit describes the scale of a criterion value
type Unit string

const (
	UnitPercent Unit = "percent"
	UnitScore   Unit = "score" // 1-5 rating
)

// Targets holds the production-readiness thresholds. Rates are in percent,
// scores on the 1-5 scale.
type Targets struct {
	AgentSuccessRate       float64
	FixPrMergeRate         float64
	AnalysisPrMergeRate    float64
	MaxWorkflowFailureRate float64

	DetectionAccuracy     float64
	QualityScore          float64
	DeveloperSatisfaction float64
	ContextUtilization    float64
	MaxFalsePositiveRate  float64
}

// DefaultTargets returns the thresholds used by the parity pipeline
func DefaultTargets() Targets {
	return Targets{
		AgentSuccessRate:       95,
		FixPrMergeRate:         70,
		AnalysisPrMergeRate:    70,
		MaxWorkflowFailureRate: 2,

		DetectionAccuracy:     90,
		QualityScore:          3.5,
		DeveloperSatisfaction: 4.0,
		ContextUtilization:    80,
		MaxFalsePositiveRate:  5,
	}
}

// Criterion is one evaluated production-readiness check. A pending
// criterion has no value yet and is neither met nor missed.
type Criterion struct {
	Name       string     `json:"name"`
	Value      float64    `json:"value"`
	Target     float64    `json:"target"`
	Comparison Comparison `json:"comparison"`
	Unit       Unit       `json:"unit"`
	Met        bool       `json:"met"`
	Pending    bool       `json:"pending,omitempty"`
}

// Missed reports whether the criterion was evaluated and failed
func (c Criterion) Missed() bool {
	return !c.Pending && !c.Met
}

// Gap returns how far the value is from satisfying the target, 0 when met
// or pending
func (c Criterion) Gap() float64 {
	if !c.Missed() {
		return 0
	}
	if c.Comparison == LessThan {
		return c.Value - c.Target
	}
	return c.Target - c.Value
}

// CriteriaReport pairs the production criteria with the summary they were evaluated on
type CriteriaReport struct {
	Summary  Summary     `json:"summary"`
	Criteria []Criterion `json:"criteria"`
	AllMet   bool        `json:"allMet"`
	Pending  int         `json:"pending"`
}

// NewCriteriaReport builds a report. AllMet holds when no evaluated
// criterion was missed; pending criteria are counted separately.
func NewCriteriaReport(summary Summary, criteria []Criterion) CriteriaReport {
	report := CriteriaReport{Summary: summary, Criteria: criteria, AllMet: true}
	for _, c := range criteria {
		if c.Pending {
			report.Pending++
		}
		if c.Missed() {
			report.AllMet = false
		}
	}
	return report
}

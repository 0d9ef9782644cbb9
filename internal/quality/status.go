package quality

// Status labels of a quality dimension.
const (
	StatusGood    = "good"
	StatusWarning = "warning"
	StatusPoor    = "poor"
)

// Grade labels of an overall score.
const (
	GradeExcellent = "excellent"
	GradeWarning   = "warning"
	GradePoor      = "poor"
)

// Dimension and grade thresholds.
const (
	GoodThreshold      = 80
	WarningThreshold   = 60
	ExcellentGrade     = 85
	WarningGradeCutoff = 70
)

// Status maps a 0-100 dimension score to good (>=80), warning (>=60) or poor.
func Status(score float64) string {
	switch {
	case score >= GoodThreshold:
		return StatusGood
	case score >= WarningThreshold:
		return StatusWarning
	default:
		return StatusPoor
	}
}

// Grade maps an overall score to excellent (>=85), warning (70-84) or poor.
func Grade(score float64) string {
	switch {
	case score >= ExcellentGrade:
		return GradeExcellent
	case score >= WarningGradeCutoff:
		return GradeWarning
	default:
		return GradePoor
	}
}

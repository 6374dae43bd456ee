package models

// GradeCount is the number of test results with a given grade.
type GradeCount struct {
	Grade QualityGrade `db:"grade" json:"grade"`
	Count int          `db:"count" json:"count"`
}

// Analytics summarises activity across the supply chain.
type Analytics struct {
	TotalHarvests       int          `db:"total_harvests" json:"total_harvests"`
	TotalTests          int          `db:"total_tests" json:"total_tests"`
	TotalBatches        int          `db:"total_batches" json:"total_batches"`
	TotalLots           int          `db:"total_lots" json:"total_lots"`
	QualityDistribution []GradeCount `db:"-" json:"quality_distribution"`
}

package core

type (
	// AnalyticsSnapshot is the dashboard view derived from the expense log.
	// It is never stored.
	AnalyticsSnapshot struct {
		TotalAmount         float64              `json:"total_amount"`
		TransactionCount    int                  `json:"transaction_count"`
		AverageConfidence   float64              `json:"average_confidence"`
		CategoryBreakdown   map[Category]float64 `json:"category_breakdown"`
		MethodDistribution  map[string]int       `json:"method_distribution"`
		DailyTrend          []DailyBucket        `json:"daily_trend"`
		MonthlyTrend        []MonthlyBucket      `json:"monthly_trend"`
		ConfidenceHistogram []ConfidenceBucket   `json:"confidence_histogram"`
		ProcessingTime      ProcessingTimeStats  `json:"processing_time"`
	}

	DailyBucket struct {
		Date   string  `json:"date"`
		Amount float64 `json:"amount"`
		Count  int     `json:"count"`
	}

	MonthlyBucket struct {
		Label   string  `json:"label"`
		Needs   float64 `json:"needs"`
		Wants   float64 `json:"wants"`
		Savings float64 `json:"savings"`
	}

	ConfidenceBucket struct {
		Label string `json:"label"`
		Count int    `json:"count"`
	}

	ProcessingTimeStats struct {
		Min float64 `json:"min"`
		Avg float64 `json:"avg"`
		Max float64 `json:"max"`
	}
)

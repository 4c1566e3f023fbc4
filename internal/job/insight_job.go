package job

import (
	"context"

	"github.com/xxxsen/paperpilot/internal/service"
)

// InsightJob sweeps every user's library and rebuilds the insight set.
type InsightJob struct {
	insights *service.InsightService
}

func NewInsightJob(insights *service.InsightService) *InsightJob {
	return &InsightJob{insights: insights}
}

func (j *InsightJob) Name() string {
	return "insight_sweep"
}

func (j *InsightJob) Run(ctx context.Context) error {
	if j.insights == nil {
		return nil
	}
	return j.insights.RefreshAll(ctx)
}

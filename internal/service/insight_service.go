package service

import (
	"context"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/paperpilot/internal/insight"
	"github.com/xxxsen/paperpilot/internal/model"
	"github.com/xxxsen/paperpilot/internal/repo"
)

type InsightService struct {
	engine   *insight.Engine
	insights *repo.InsightRepo
	docs     *repo.DocumentRepo
}

func NewInsightService(engine *insight.Engine, insights *repo.InsightRepo, docs *repo.DocumentRepo) *InsightService {
	return &InsightService{engine: engine, insights: insights, docs: docs}
}

func (s *InsightService) List(ctx context.Context, userID string) ([]*model.Insight, error) {
	return s.insights.ListByUser(ctx, userID)
}

// Refresh recomputes the insight set for one user on demand.
func (s *InsightService) Refresh(ctx context.Context, userID string) error {
	return s.engine.Run(ctx, userID)
}

// RefreshAll walks every user with documents and recomputes their insights.
// One user's failure does not stop the sweep.
func (s *InsightService) RefreshAll(ctx context.Context) error {
	users, err := s.docs.ListUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	var failed int
	for _, uid := range users {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.engine.Run(ctx, uid); err != nil {
			failed++
			logutil.GetLogger(ctx).Error("insight run failed",
				zap.String("user_id", uid), zap.Error(err))
		}
	}
	if failed > 0 {
		return fmt.Errorf("insight sweep: %d of %d users failed", failed, len(users))
	}
	return nil
}

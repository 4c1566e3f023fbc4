package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/paperpilot/internal/ai"
	"github.com/xxxsen/paperpilot/internal/config"
	"github.com/xxxsen/paperpilot/internal/event"
	"github.com/xxxsen/paperpilot/internal/model"
	appErr "github.com/xxxsen/paperpilot/internal/pkg/errors"
	"github.com/xxxsen/paperpilot/internal/pkg/timeutil"
	"github.com/xxxsen/paperpilot/internal/plan"
	"github.com/xxxsen/paperpilot/internal/repo"
)

const planBlurbPrompt = `A student set this study goal: %q with %d papers to work through. Write a short motivating plan title and two or three one-line study tips. Reply as two lines: first line the title, following lines the tips.`

// Progress event actions accepted by RecordProgress.
const (
	ProgressCompleted = "completed"
	ProgressSkipped   = "skipped"
)

// PlanView is a stored plan plus its derived aggregate state.
type PlanView struct {
	*model.StudyPlan
	State string `json:"state"`
}

type PlanService struct {
	plans *repo.PlanRepo
	docs  *repo.DocumentRepo
	gen   ai.IGenerator
	pub   event.Publisher
	cfg   config.PlanConfig
}

func NewPlanService(plans *repo.PlanRepo, docs *repo.DocumentRepo, gen ai.IGenerator,
	pub event.Publisher, cfg config.PlanConfig) *PlanService {
	if pub == nil {
		pub = event.NopPublisher{}
	}
	return &PlanService{plans: plans, docs: docs, gen: gen, pub: pub, cfg: cfg}
}

func (s *PlanService) schedulerConfig() plan.Config {
	return plan.Config{
		MinutesPerDay:     s.cfg.MinutesPerDay,
		MaxSessionsPerDay: s.cfg.MaxSessionsPerDay,
	}
}

// Create builds the initial schedule for a goal. The deterministic
// allocation is authoritative; the model only decorates it with a title and
// tips, and its failure never fails the plan.
func (s *PlanService) Create(ctx context.Context, userID string, goal model.StudyGoal) (*PlanView, error) {
	docs, err := s.resolveDocs(ctx, userID, goal.DocumentIDs)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: no documents to plan", appErr.ErrInvalid)
	}
	now := time.Now()
	result := plan.Build(goal, docs, s.schedulerConfig(), now)

	p := &model.StudyPlan{
		ID:         newID(),
		UserID:     userID,
		Objective:  goal.Objective,
		Deadline:   goal.Deadline,
		StartDay:   timeutil.StartOfDay(now).UnixMilli(),
		Infeasible: result.Infeasible,
		Sessions:   result.Sessions,
		Ctime:      timeutil.NowMilli(),
		Mtime:      timeutil.NowMilli(),
	}
	for i := range p.Sessions {
		p.Sessions[i].ID = newID()
		p.Sessions[i].PlanID = p.ID
	}
	s.decorate(ctx, p, goal, len(docs))
	if err := s.plans.Save(ctx, p); err != nil {
		return nil, fmt.Errorf("save plan: %w", err)
	}
	if result.Infeasible {
		logutil.GetLogger(ctx).Warn("plan does not fit before deadline",
			zap.String("plan_id", p.ID), zap.Int64("deadline", goal.Deadline),
			zap.Error(appErr.ErrDeadlineInfeasible))
	}
	s.pub.Publish(ctx, event.Event{Type: event.TypePlanUpdated, UserID: userID, PlanID: p.ID})
	return &PlanView{StudyPlan: p, State: plan.DeriveState(p, now)}, nil
}

func (s *PlanService) Get(ctx context.Context, userID, planID string) (*PlanView, error) {
	p, err := s.plans.Get(ctx, userID, planID)
	if err != nil {
		return nil, err
	}
	return &PlanView{StudyPlan: p, State: plan.DeriveState(p, time.Now())}, nil
}

func (s *PlanService) List(ctx context.Context, userID string) ([]*PlanView, error) {
	plans, err := s.plans.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	out := make([]*PlanView, 0, len(plans))
	for _, p := range plans {
		out = append(out, &PlanView{StudyPlan: p, State: plan.DeriveState(p, now)})
	}
	return out, nil
}

func (s *PlanService) Delete(ctx context.Context, userID, planID string) error {
	return s.plans.Delete(ctx, userID, planID)
}

// RecordProgress applies one session event and recomputes the remaining
// allocation. Completed sessions are immutable; recording progress on one
// is a conflict.
func (s *PlanService) RecordProgress(ctx context.Context, userID, planID, sessionID, action string) (*PlanView, error) {
	var state int
	switch action {
	case ProgressCompleted:
		state = model.SessionStateCompleted
	case ProgressSkipped:
		state = model.SessionStateSkipped
	default:
		return nil, fmt.Errorf("%w: unknown progress action %q", appErr.ErrInvalid, action)
	}
	p, err := s.plans.Get(ctx, userID, planID)
	if err != nil {
		return nil, err
	}
	updated := false
	for i := range p.Sessions {
		if p.Sessions[i].ID != sessionID {
			continue
		}
		if p.Sessions[i].State == model.SessionStateCompleted {
			return nil, fmt.Errorf("%w: session already completed", appErr.ErrConflict)
		}
		p.Sessions[i].State = state
		updated = true
		break
	}
	if !updated {
		return nil, appErr.ErrNotFound
	}
	// Record the event before rebuilding so a failed reallocation cannot
	// lose it.
	if err := s.plans.UpdateSessionState(ctx, userID, sessionID, state); err != nil {
		return nil, err
	}

	docs, err := s.planDocs(ctx, userID, p)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	result := plan.Reschedule(p, docs, s.schedulerConfig(), now)
	p.Infeasible = result.Infeasible
	p.Sessions = result.Sessions
	p.Mtime = timeutil.NowMilli()
	for i := range p.Sessions {
		if p.Sessions[i].ID == "" {
			p.Sessions[i].ID = newID()
		}
		p.Sessions[i].PlanID = p.ID
	}
	if err := s.plans.Save(ctx, p); err != nil {
		return nil, fmt.Errorf("save plan: %w", err)
	}
	s.pub.Publish(ctx, event.Event{Type: event.TypePlanUpdated, UserID: userID, PlanID: p.ID})
	return &PlanView{StudyPlan: p, State: plan.DeriveState(p, now)}, nil
}

func (s *PlanService) resolveDocs(ctx context.Context, userID string, ids []string) ([]plan.DocumentInfo, error) {
	var docs []*model.Document
	var err error
	if len(ids) > 0 {
		docs, err = s.docs.GetDocuments(ctx, userID, ids)
		if err == nil && len(docs) != len(ids) {
			return nil, fmt.Errorf("%w: unknown document in goal", appErr.ErrNotFound)
		}
	} else {
		docs, err = s.docs.ListByUser(ctx, userID, 0, 200)
	}
	if err != nil {
		return nil, err
	}
	return toDocumentInfo(docs), nil
}

// planDocs rebuilds the document set a stored plan was made from.
func (s *PlanService) planDocs(ctx context.Context, userID string, p *model.StudyPlan) ([]plan.DocumentInfo, error) {
	seen := map[string]struct{}{}
	var ids []string
	for _, sess := range p.Sessions {
		if sess.DocumentID == "" {
			continue
		}
		if _, ok := seen[sess.DocumentID]; !ok {
			seen[sess.DocumentID] = struct{}{}
			ids = append(ids, sess.DocumentID)
		}
	}
	docs, err := s.docs.GetDocuments(ctx, userID, ids)
	if err != nil {
		return nil, err
	}
	return toDocumentInfo(docs), nil
}

func toDocumentInfo(docs []*model.Document) []plan.DocumentInfo {
	out := make([]plan.DocumentInfo, 0, len(docs))
	for _, d := range docs {
		out = append(out, plan.DocumentInfo{ID: d.ID, Complexity: d.Complexity, Uploaded: d.Ctime})
	}
	return out
}

func (s *PlanService) decorate(ctx context.Context, p *model.StudyPlan, goal model.StudyGoal, docCount int) {
	if s.gen == nil {
		p.Title = fallbackTitle(goal)
		return
	}
	reply, err := s.gen.Generate(ctx, fmt.Sprintf(planBlurbPrompt, goal.Objective, docCount))
	if err != nil {
		logutil.GetLogger(ctx).Warn("plan blurb generation failed", zap.Error(err))
		p.Title = fallbackTitle(goal)
		return
	}
	lines := strings.SplitN(strings.TrimSpace(reply), "\n", 2)
	p.Title = strings.TrimSpace(lines[0])
	if p.Title == "" {
		p.Title = fallbackTitle(goal)
	}
	if len(lines) > 1 {
		p.Tips = strings.TrimSpace(lines[1])
	}
}

func fallbackTitle(goal model.StudyGoal) string {
	if goal.Objective != "" {
		return goal.Objective
	}
	return "Study plan"
}

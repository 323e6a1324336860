package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/fromscratch/identity/internal/apperr"
	"github.com/fromscratch/identity/internal/model"
	"github.com/fromscratch/identity/internal/repository"
)

// PlanService reads the plan catalog.
type PlanService struct {
	store repository.Store
	log   *zap.Logger
}

func NewPlanService(store repository.Store, log *zap.Logger) *PlanService {
	return &PlanService{store: store, log: log}
}

// ListPlans returns active plans, cheapest first.
func (s *PlanService) ListPlans(ctx context.Context) ([]model.SubscriptionPlan, error) {
	plans, err := s.store.Repos().Plans.ListActive(ctx)
	if err != nil {
		return nil, internal(err)
	}
	return plans, nil
}

// GetPlan returns one plan by id.
func (s *PlanService) GetPlan(ctx context.Context, id string) (*model.SubscriptionPlan, error) {
	return getPlan(ctx, s.store.Repos(), id)
}

// SeedResult counts what Seed did.
type SeedResult struct {
	Created int
	Updated int
}

// Seed upserts plans by name in one transaction.
func (s *PlanService) Seed(ctx context.Context, plans []model.SubscriptionPlan) (SeedResult, error) {
	var res SeedResult
	for i := range plans {
		if strings.TrimSpace(plans[i].Name) == "" {
			return res, apperr.Validation("plan name is required")
		}
		if plans[i].PriceCents < 0 {
			return res, apperr.Validation("plan price must not be negative: " + plans[i].Name)
		}
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, r repository.Repos) error {
		res = SeedResult{}
		for i := range plans {
			created, err := r.Plans.UpsertByName(ctx, &plans[i])
			if err != nil {
				return err
			}
			if created {
				res.Created++
			} else {
				res.Updated++
			}
		}
		return nil
	})
	if err != nil {
		return SeedResult{}, internal(err)
	}
	s.log.Info("plans seeded", zap.Int("created", res.Created), zap.Int("updated", res.Updated))
	return res, nil
}

func getPlan(ctx context.Context, r repository.Repos, id string) (*model.SubscriptionPlan, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrPlanNotFound
	}
	p, err := r.Plans.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

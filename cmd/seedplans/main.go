// Command seedplans upserts the subscription plan catalog from a JSON file.
// Plans are matched by name, so running it twice changes nothing.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/fromscratch/identity/internal/config"
	"github.com/fromscratch/identity/internal/database"
	"github.com/fromscratch/identity/internal/model"
	"github.com/fromscratch/identity/internal/repository"
	"github.com/fromscratch/identity/internal/service"
)

func main() {
	_ = godotenv.Load()

	file := flag.String("file", "plans.json", "JSON array of plans")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(*file, logger); err != nil {
		logger.Fatal("seeding failed", zap.Error(err))
	}
}

func run(path string, logger *zap.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	plans, err := parsePlans(f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		return err
	}

	res, err := service.NewPlanService(repository.NewMySQLStore(db), logger).Seed(ctx, plans)
	if err != nil {
		return err
	}
	logger.Info("seeding completed", zap.Int("created", res.Created), zap.Int("updated", res.Updated))
	return nil
}

type planFile struct {
	Name          string           `json:"name"`
	Price         float64          `json:"price"`
	OldPrice      *float64         `json:"oldPrice"`
	BillingPeriod string           `json:"billingPeriod"`
	Description   description      `json:"description"`
	IsActive      *bool            `json:"isActive"`
	IsPopular     bool             `json:"isPopular"`
	Config        model.PlanConfig `json:"config"`
}

// description accepts a single string or a list of strings.
type description []string

func (d *description) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*d = nil
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*d = nil
		} else {
			*d = description{s}
		}
		return nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return errors.New("description must be a string or a list of strings")
	}
	*d = list
	return nil
}

func parsePlans(r io.Reader) ([]model.SubscriptionPlan, error) {
	var in []planFile
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return nil, err
	}
	out := make([]model.SubscriptionPlan, 0, len(in))
	for i, p := range in {
		if p.Name == "" {
			return nil, fmt.Errorf("plan %d: name is required", i)
		}
		if p.Price < 0 {
			return nil, fmt.Errorf("plan %q: negative price", p.Name)
		}
		sp := model.SubscriptionPlan{
			Name:          p.Name,
			PriceCents:    cents(p.Price),
			BillingPeriod: p.BillingPeriod,
			Description:   p.Description,
			IsActive:      p.IsActive == nil || *p.IsActive,
			IsPopular:     p.IsPopular,
			Config:        p.Config,
		}
		if sp.BillingPeriod == "" {
			sp.BillingPeriod = "month"
		}
		if p.OldPrice != nil {
			old := cents(*p.OldPrice)
			sp.OldPriceCents = &old
		}
		out = append(out, sp)
	}
	return out, nil
}

func cents(major float64) int64 { return int64(math.Round(major * 100)) }

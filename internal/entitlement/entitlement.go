// Package entitlement applies reseller plan limits to resolved metadata.
package entitlement

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/juniorsir/stream-dl/internal/config"
	"github.com/juniorsir/stream-dl/internal/model"
)

// PlanHeader carries the caller's subscription plan.
const PlanHeader = "X-RapidAPI-Subscription"

// Tier is one plan's limits.
type Tier struct {
	Name        string
	MaxDuration time.Duration
	AllowMerge  bool
}

// DeniedError rejects media that exceeds the caller's plan.
type DeniedError struct {
	Tier    string
	Message string
}

func (e *DeniedError) Error() string { return e.Message }

// Gate resolves plans to tiers. The first tier is the fallback for missing
// or unknown plans.
type Gate struct {
	tiers  []Tier
	byName map[string]int
}

func New(tiers []config.TierConfig) (*Gate, error) {
	if len(tiers) == 0 {
		return nil, errors.New("entitlement: at least one tier is required")
	}
	g := &Gate{
		tiers:  make([]Tier, 0, len(tiers)),
		byName: make(map[string]int, len(tiers)),
	}
	for _, tc := range tiers {
		name := strings.ToUpper(strings.TrimSpace(tc.Name))
		if name == "" {
			return nil, errors.New("entitlement: tier name must not be empty")
		}
		if _, dup := g.byName[name]; dup {
			return nil, fmt.Errorf("entitlement: duplicate tier %q", name)
		}
		g.byName[name] = len(g.tiers)
		g.tiers = append(g.tiers, Tier{Name: name, MaxDuration: tc.MaxDuration.Std(), AllowMerge: tc.AllowMerge})
	}
	return g, nil
}

// Tier returns the tier for plan, matched case-insensitively.
func (g *Gate) Tier(plan string) Tier {
	if i, ok := g.byName[strings.ToUpper(strings.TrimSpace(plan))]; ok {
		return g.tiers[i]
	}
	return g.tiers[0]
}

// Apply checks info against the plan and returns a filtered copy. info is
// never modified.
func (g *Gate) Apply(plan string, info *model.MediaInfo) (*model.MediaInfo, error) {
	tier := g.Tier(plan)
	duration := time.Duration(info.Duration * float64(time.Second))
	if tier.MaxDuration > 0 && duration > tier.MaxDuration {
		return nil, &DeniedError{
			Tier: tier.Name,
			Message: fmt.Sprintf("Your %s plan allows videos up to %d minutes. This video is about %d minutes long.",
				tier.Name,
				int(math.Ceil(tier.MaxDuration.Minutes())),
				int(math.Round(info.Duration/60)),
			),
		}
	}

	out := *info
	out.Formats = make([]model.Format, 0, len(info.Formats))
	for _, f := range info.Formats {
		if !tier.AllowMerge && f.IsVideoOnly() {
			continue
		}
		out.Formats = append(out.Formats, f)
	}
	return &out, nil
}

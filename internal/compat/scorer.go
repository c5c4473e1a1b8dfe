package compat

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/oggyb/muzz-matchmaking/internal/eligibility"
	"github.com/oggyb/muzz-matchmaking/internal/pair"
	"github.com/oggyb/muzz-matchmaking/internal/repository"
)

// ProfileScorer is the built-in scorer: a weighted sum of shared activities,
// age gap, distance and mutual zodiac acceptance, on a 0-100 scale.
type ProfileScorer struct {
	profiles *repository.ProfileRepository
	now      func() time.Time
}

func NewProfileScorer(profiles *repository.ProfileRepository) *ProfileScorer {
	return &ProfileScorer{profiles: profiles, now: time.Now}
}

const (
	weightActivities = 40.0
	weightAge        = 25.0
	weightDistance   = 20.0
	weightZodiac     = 15.0
)

func (s *ProfileScorer) Score(ctx context.Context, p pair.Pair) (Result, error) {
	low, err := s.profiles.Get(ctx, p.Low)
	if err != nil {
		return Result{}, err
	}
	high, err := s.profiles.Get(ctx, p.High)
	if err != nil {
		return Result{}, err
	}
	if low == nil || high == nil {
		return Result{}, fmt.Errorf("profile missing for pair %s", p)
	}

	now := s.now()
	a := eligibility.FromUser(low, now, nil)
	b := eligibility.FromUser(high, now, nil)

	breakdown := map[string]float64{
		"activities": weightActivities * jaccard(a.Activities, b.Activities),
		"age":        weightAge * ageCloseness(a.Age, b.Age),
		"distance":   weightDistance * nearness(a.Location, b.Location),
		"zodiac":     weightZodiac * zodiacAcceptance(a, b),
	}

	var total float64
	for _, v := range breakdown {
		total += v
	}
	total = math.Min(100, math.Max(0, total))
	return Result{Score: math.Round(total*100) / 100, Breakdown: breakdown}, nil
}

// jaccard compares activity sets; repeated entries count once.
func jaccard(a, b []string) float64 {
	setA := toSet(a)
	setB := toSet(b)
	union := len(setA)
	shared := 0
	for x := range setB {
		if _, ok := setA[x]; ok {
			shared++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}

func toSet(xs []string) map[string]struct{} {
	set := make(map[string]struct{}, len(xs))
	for _, x := range xs {
		set[x] = struct{}{}
	}
	return set
}

// ageCloseness is 1 at the same age and 0 at a 15 year gap. Unknown is neutral.
func ageCloseness(a, b *int) float64 {
	if a == nil || b == nil {
		return 0.5
	}
	gap := math.Abs(float64(*a - *b))
	return math.Max(0, 1-gap/15)
}

// nearness is 1 at the same spot and 0 at 100km. Unknown is neutral.
func nearness(a, b *eligibility.Location) float64 {
	if a == nil || b == nil {
		return 0.5
	}
	return math.Max(0, 1-eligibility.DistanceKm(*a, *b)/100)
}

func zodiacAcceptance(a, b eligibility.Profile) float64 {
	score := 0.0
	if len(a.Prefs.ZodiacFilters) == 0 || slices.Contains(a.Prefs.ZodiacFilters, b.Zodiac) {
		score += 0.5
	}
	if len(b.Prefs.ZodiacFilters) == 0 || slices.Contains(b.Prefs.ZodiacFilters, a.Zodiac) {
		score += 0.5
	}
	return score
}

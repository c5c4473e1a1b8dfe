// Package eligibility decides whether two users may be shown to each other
// or matched. Everything here is a pure function of the two profiles.
package eligibility

import (
	"math"
	"slices"
	"time"

	"github.com/oggyb/muzz-matchmaking/internal/db"
)

// Rejection reasons, reported in this order.
const (
	ReasonSelf     = "self"
	ReasonExcluded = "excluded"
	ReasonAge      = "age"
	ReasonDistance = "distance"
	ReasonGender   = "gender"
	ReasonActivity = "activity"
	ReasonZodiac   = "zodiac"
)

var reasonOrder = []string{
	ReasonSelf, ReasonExcluded, ReasonAge, ReasonDistance, ReasonGender, ReasonActivity, ReasonZodiac,
}

type Location struct {
	Lat float64
	Lng float64
}

// Preferences are what a user accepts in the other side.
// Zero values mean "no constraint".
type Preferences struct {
	MinAge          int
	MaxAge          int
	MaxDistanceKm   float64
	GenderTargets   []string
	ActivityFilters []string
	ZodiacFilters   []string
}

// Profile is one side of an eligibility check.
type Profile struct {
	UserID     uint64
	Age        *int
	Gender     string
	Location   *Location
	Zodiac     string
	Activities []string
	Prefs      Preferences

	// Excluded holds users this profile must never be paired with:
	// blocks, and for discovery the prior swipes.
	Excluded []uint64
}

type Result struct {
	Eligible bool     `json:"eligible"`
	Reasons  []string `json:"reasons"`
}

// IsEligible checks the viewer's preferences against the candidate and the
// candidate's preferences against the viewer. The pair is eligible only if
// both directions accept.
//
// Missing location on either side satisfies the distance constraint. Any
// other missing attribute fails a constraint that asks for it.
func IsEligible(viewer, candidate Profile) Result {
	failed := map[string]bool{}

	if viewer.UserID == candidate.UserID {
		failed[ReasonSelf] = true
	}
	if slices.Contains(viewer.Excluded, candidate.UserID) || slices.Contains(candidate.Excluded, viewer.UserID) {
		failed[ReasonExcluded] = true
	}

	for _, r := range accepts(viewer.Prefs, candidate, viewer.Location) {
		failed[r] = true
	}
	for _, r := range accepts(candidate.Prefs, viewer, candidate.Location) {
		failed[r] = true
	}

	reasons := make([]string, 0, len(failed))
	for _, r := range reasonOrder {
		if failed[r] {
			reasons = append(reasons, r)
		}
	}
	return Result{Eligible: len(reasons) == 0, Reasons: reasons}
}

// accepts returns the reasons prefs rejects other, seen from a user at origin.
func accepts(prefs Preferences, other Profile, origin *Location) []string {
	var reasons []string

	if prefs.MinAge > 0 || prefs.MaxAge > 0 {
		switch {
		case other.Age == nil:
			reasons = append(reasons, ReasonAge)
		case prefs.MinAge > 0 && *other.Age < prefs.MinAge:
			reasons = append(reasons, ReasonAge)
		case prefs.MaxAge > 0 && *other.Age > prefs.MaxAge:
			reasons = append(reasons, ReasonAge)
		}
	}

	if prefs.MaxDistanceKm > 0 && origin != nil && other.Location != nil {
		if DistanceKm(*origin, *other.Location) > prefs.MaxDistanceKm {
			reasons = append(reasons, ReasonDistance)
		}
	}

	if len(prefs.GenderTargets) > 0 && !slices.Contains(prefs.GenderTargets, other.Gender) {
		reasons = append(reasons, ReasonGender)
	}

	if len(prefs.ActivityFilters) > 0 && !overlaps(prefs.ActivityFilters, other.Activities) {
		reasons = append(reasons, ReasonActivity)
	}

	if len(prefs.ZodiacFilters) > 0 && !slices.Contains(prefs.ZodiacFilters, other.Zodiac) {
		reasons = append(reasons, ReasonZodiac)
	}

	return reasons
}

func overlaps(a, b []string) bool {
	for _, x := range a {
		if slices.Contains(b, x) {
			return true
		}
	}
	return false
}

const earthRadiusKm = 6371.0

// DistanceKm is the great-circle distance between two coordinates.
func DistanceKm(a, b Location) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

// AgeAt returns whole years between birth and now.
func AgeAt(birth, now time.Time) int {
	years := now.Year() - birth.Year()
	if now.Month() < birth.Month() || (now.Month() == birth.Month() && now.Day() < birth.Day()) {
		years--
	}
	return years
}

// FromUser builds a profile from the stored user row.
func FromUser(u *db.User, now time.Time, excluded []uint64) Profile {
	p := Profile{
		UserID:     u.ID,
		Gender:     u.Gender,
		Zodiac:     u.Zodiac,
		Activities: u.Activities,
		Excluded:   excluded,
		Prefs: Preferences{
			MinAge:          u.MinAge,
			MaxAge:          u.MaxAge,
			MaxDistanceKm:   u.MaxDistanceKm,
			GenderTargets:   u.GenderTargets,
			ActivityFilters: u.ActivityFilters,
			ZodiacFilters:   u.ZodiacFilters,
		},
	}
	if u.BirthDate != nil {
		age := AgeAt(*u.BirthDate, now)
		p.Age = &age
	}
	if u.Latitude != nil && u.Longitude != nil {
		p.Location = &Location{Lat: *u.Latitude, Lng: *u.Longitude}
	}
	return p
}

package eligibility

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/muzz-matchmaking/internal/db"
)

func intPtr(v int) *int { return &v }

var london = &Location{Lat: 51.5074, Lng: -0.1278}

func base(id uint64) Profile {
	return Profile{
		UserID:     id,
		Age:        intPtr(30),
		Gender:     "female",
		Location:   london,
		Zodiac:     "leo",
		Activities: []string{"running", "climbing"},
	}
}

func TestIsEligible_OpenPreferences(t *testing.T) {
	res := IsEligible(base(1), base(2))
	assert.True(t, res.Eligible)
	assert.Empty(t, res.Reasons)
}

func TestIsEligible_DistanceScenario(t *testing.T) {
	viewer := base(1)
	viewer.Prefs.MaxDistanceKm = 50

	candidate := base(2)
	// ~80km due north
	candidate.Location = &Location{Lat: london.Lat + 0.7195, Lng: london.Lng}

	res := IsEligible(viewer, candidate)
	assert.False(t, res.Eligible)
	assert.Equal(t, []string{ReasonDistance}, res.Reasons)
}

func TestIsEligible_DistanceFailsOpenWithoutLocation(t *testing.T) {
	viewer := base(1)
	viewer.Prefs.MaxDistanceKm = 5
	candidate := base(2)
	candidate.Location = nil

	assert.True(t, IsEligible(viewer, candidate).Eligible)
}

func TestIsEligible_MissingAttributesFailClosed(t *testing.T) {
	viewer := base(1)
	viewer.Prefs = Preferences{
		MinAge:          25,
		GenderTargets:   []string{"female"},
		ActivityFilters: []string{"running"},
		ZodiacFilters:   []string{"leo"},
	}
	candidate := Profile{UserID: 2}

	res := IsEligible(viewer, candidate)
	assert.False(t, res.Eligible)
	assert.Equal(t, []string{ReasonAge, ReasonGender, ReasonActivity, ReasonZodiac}, res.Reasons)
}

func TestIsEligible_Bidirectional(t *testing.T) {
	viewer := base(1)
	viewer.Gender = "male"
	candidate := base(2)
	candidate.Prefs.GenderTargets = []string{"female"}

	// viewer accepts candidate, candidate does not accept viewer
	res := IsEligible(viewer, candidate)
	assert.False(t, res.Eligible)
	assert.Equal(t, []string{ReasonGender}, res.Reasons)

	// same outcome from the other side
	assert.Equal(t, res, IsEligible(candidate, viewer))
}

func TestIsEligible_AgeBounds(t *testing.T) {
	viewer := base(1)
	viewer.Prefs.MinAge = 31
	assert.Equal(t, []string{ReasonAge}, IsEligible(viewer, base(2)).Reasons)

	viewer.Prefs = Preferences{MaxAge: 29}
	assert.Equal(t, []string{ReasonAge}, IsEligible(viewer, base(2)).Reasons)

	viewer.Prefs = Preferences{MinAge: 18, MaxAge: 30}
	assert.True(t, IsEligible(viewer, base(2)).Eligible)
}

func TestIsEligible_SelfAndExcluded(t *testing.T) {
	res := IsEligible(base(1), base(1))
	assert.Contains(t, res.Reasons, ReasonSelf)

	viewer := base(1)
	candidate := base(2)
	candidate.Excluded = []uint64{1}
	res = IsEligible(viewer, candidate)
	assert.Equal(t, []string{ReasonExcluded}, res.Reasons)
}

func TestDistanceKm(t *testing.T) {
	paris := Location{Lat: 48.8566, Lng: 2.3522}
	d := DistanceKm(*london, paris)
	assert.InDelta(t, 343, d, 5)
	assert.InDelta(t, 0, DistanceKm(paris, paris), 1e-9)
}

func TestAgeAt(t *testing.T) {
	birth := time.Date(1990, time.June, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 33, AgeAt(birth, time.Date(2024, time.June, 14, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 34, AgeAt(birth, time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC)))
}

func TestFromUser(t *testing.T) {
	birth := time.Date(1994, time.January, 1, 0, 0, 0, 0, time.UTC)
	lat, lng := 51.5, -0.12
	u := &db.User{
		ID:            5,
		Gender:        "male",
		BirthDate:     &birth,
		Latitude:      &lat,
		Longitude:     &lng,
		Activities:    []string{"yoga"},
		MaxDistanceKm: 10,
		GenderTargets: []string{"female"},
	}

	p := FromUser(u, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), []uint64{9})
	require.NotNil(t, p.Age)
	assert.Equal(t, 30, *p.Age)
	require.NotNil(t, p.Location)
	assert.Equal(t, []string{"female"}, p.Prefs.GenderTargets)
	assert.Equal(t, []uint64{9}, p.Excluded)

	u.Latitude = nil
	assert.Nil(t, FromUser(u, time.Now(), nil).Location)
}

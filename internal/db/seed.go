package db

import (
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	seedActivities = []string{"hiking", "running", "climbing", "yoga", "cycling", "swimming", "chess", "cooking"}
	seedZodiac     = []string{"aries", "taurus", "gemini", "cancer", "leo", "virgo", "libra", "scorpio", "sagittarius", "capricorn", "aquarius", "pisces"}
)

// SeedDemoData resets the database and fills it with demo profiles and swipes.
//
// Behavior:
//  1. Clears swipes, matches, conversations, requests, cache and users.
//  2. Creates `users` profiles (half male, half female) around London with
//     hashed passwords and open preferences.
//  3. Generates ~12 swipes per user with ~70% likes; every 3rd pair also gets
//     the reciprocal like so the engine has mutual swipes to form.
//
// Matches are not created here; run the server and swipe to form them.
func SeedDemoData(database *gorm.DB, users int, log *slog.Logger) error {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	faker := gofakeit.New(time.Now().UnixNano())

	for _, table := range []string{
		"status_audit_records", "conversations", "matches", "match_requests",
		"compatibility_entries", "rate_limit_windows", "swipes", "blocks", "users",
	} {
		if err := database.Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	switch database.Dialector.Name() {
	case "mysql":
		database.Exec("ALTER TABLE users AUTO_INCREMENT = 1")
	case "sqlite":
		database.Exec("DELETE FROM sqlite_sequence WHERE name = 'users'")
	}
	log.Info("cleared existing data")

	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	ids := make([]uint64, 0, users)
	genders := make(map[uint64]string, users)
	for i := 1; i <= users; i++ {
		gender, target := "male", "female"
		if i > users/2 {
			gender, target = "female", "male"
		}
		birth := time.Now().UTC().AddDate(-(20 + r.Intn(20)), -r.Intn(12), 0)
		lat := 51.5074 + (r.Float64()-0.5)*0.6
		lng := -0.1278 + (r.Float64()-0.5)*0.6

		user := User{
			Username:      fmt.Sprintf("%s%d", faker.Username(), i),
			Email:         fmt.Sprintf("user%d@example.com", i),
			PasswordHash:  string(hash),
			Gender:        gender,
			Active:        true,
			LastLoginAt:   time.Now().Add(-time.Duration(r.Intn(500)) * time.Hour),
			BirthDate:     &birth,
			Latitude:      &lat,
			Longitude:     &lng,
			Zodiac:        seedZodiac[r.Intn(len(seedZodiac))],
			Activities:    datatypes.NewJSONSlice(pick(r, seedActivities, 3)),
			MinAge:        18,
			MaxAge:        60,
			MaxDistanceKm: 100,
			GenderTargets: datatypes.NewJSONSlice([]string{target}),
		}
		if err := database.Create(&user).Error; err != nil {
			return fmt.Errorf("failed to seed user: %w", err)
		}
		ids = append(ids, user.ID)
		genders[user.ID] = gender
	}
	log.Info("seeded users", "count", len(ids))

	upsert := clause.OnConflict{
		Columns:   []clause.Column{{Name: "swiper_id"}, {Name: "swiped_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"decision", "updated_at"}),
	}

	counter := 0
	for _, swiper := range ids {
		for j := 0; j < 12; j++ {
			swiped := ids[r.Intn(len(ids))]
			if swiper == swiped || genders[swiper] == genders[swiped] {
				continue
			}

			decision := DecisionPass
			if r.Intn(100) < 70 {
				decision = DecisionLike
			}

			if counter%3 == 0 {
				decision = DecisionLike
				reciprocal := Swipe{SwiperID: swiped, SwipedID: swiper, Decision: DecisionLike}
				if err := database.Clauses(upsert).Create(&reciprocal).Error; err != nil {
					return fmt.Errorf("failed to seed swipe: %w", err)
				}
			}

			swipe := Swipe{SwiperID: swiper, SwipedID: swiped, Decision: decision}
			if err := database.Clauses(upsert).Create(&swipe).Error; err != nil {
				return fmt.Errorf("failed to seed swipe: %w", err)
			}
			counter++
		}
	}
	log.Info("seeded swipes", "count", counter)

	return nil
}

func pick(r *rand.Rand, from []string, n int) []string {
	out := make([]string, 0, n)
	for _, i := range r.Perm(len(from))[:n] {
		out = append(out, from[i])
	}
	return out
}

package recommend

import (
	"context"
	"database/sql"
	"strings"

	"github.com/lib/pq"
	"github.com/pkg/errors"
)

type Dosha string

const (
	Vata  Dosha = "vata"
	Pitta Dosha = "pitta"
	Kapha Dosha = "kapha"
)

var ErrNoProfile = errors.New("no profile")

// Profile is a user's wellness profile used for scoring
type Profile struct {
	UserID         string   `json:"userId"`
	PrimaryDosha   Dosha    `json:"primaryDosha"`
	SecondaryDosha Dosha    `json:"secondaryDosha,omitempty"`
	Dietary        []string `json:"dietary"`
	Preferences    []string `json:"preferences"`
}

func validDosha(d Dosha) bool {
	return d == Vata || d == Pitta || d == Kapha
}

// Normalize lower-cases all fields and validates the doshas
func (p Profile) Normalize() (Profile, error) {
	p.PrimaryDosha = Dosha(strings.ToLower(strings.TrimSpace(string(p.PrimaryDosha))))
	p.SecondaryDosha = Dosha(strings.ToLower(strings.TrimSpace(string(p.SecondaryDosha))))
	if p.PrimaryDosha != "" && !validDosha(p.PrimaryDosha) {
		return Profile{}, errors.Errorf("invalid dosha %q", p.PrimaryDosha)
	}
	if p.SecondaryDosha != "" && !validDosha(p.SecondaryDosha) {
		return Profile{}, errors.Errorf("invalid dosha %q", p.SecondaryDosha)
	}
	if p.SecondaryDosha == p.PrimaryDosha {
		p.SecondaryDosha = ""
	}
	p.Dietary = lowerAll(p.Dietary)
	p.Preferences = lowerAll(p.Preferences)
	return p, nil
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (Profile, error)
	SaveProfile(ctx context.Context, p Profile) error
}

type PgProfileStore struct {
	Db *sql.DB
}

func (s *PgProfileStore) GetProfile(ctx context.Context, userID string) (Profile, error) {
	query := `SELECT user_id, primary_dosha, secondary_dosha, dietary, preferences
		FROM user_profile WHERE user_id = $1`
	var p Profile
	err := s.Db.QueryRowContext(ctx, query, userID).Scan(&p.UserID, &p.PrimaryDosha, &p.SecondaryDosha,
		pq.Array(&p.Dietary), pq.Array(&p.Preferences))
	if err == sql.ErrNoRows {
		return Profile{}, ErrNoProfile
	}
	if err != nil {
		return Profile{}, errors.Wrap(err, "get profile")
	}
	return p, nil
}

func (s *PgProfileStore) SaveProfile(ctx context.Context, p Profile) error {
	query := `
	INSERT INTO user_profile (user_id, primary_dosha, secondary_dosha, dietary, preferences)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (user_id) DO UPDATE SET
		primary_dosha = EXCLUDED.primary_dosha, secondary_dosha = EXCLUDED.secondary_dosha,
		dietary = EXCLUDED.dietary, preferences = EXCLUDED.preferences, updated_at = now()`
	_, err := s.Db.ExecContext(ctx, query, p.UserID, p.PrimaryDosha, p.SecondaryDosha,
		pq.Array(p.Dietary), pq.Array(p.Preferences))
	return errors.Wrap(err, "save profile")
}

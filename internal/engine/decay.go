package engine

import (
	"math"
	"time"

	"github.com/mnemo-sh/mnemo/internal/store"
)

// DecayParams tunes the retrieval decay curve. The defaults give new
// records a 90-day half-life, stretched by 30 days per access up to two
// years, so frequently recalled memories fade much more slowly.
type DecayParams struct {
	HalfLifeDays    float64
	AccessBonusDays float64
	MaxHalfLifeDays float64
	Floor           float64
}

// DefaultDecayParams returns the standard decay curve.
func DefaultDecayParams() DecayParams {
	return DecayParams{
		HalfLifeDays:    90,
		AccessBonusDays: 30,
		MaxHalfLifeDays: 730,
		Floor:           0.05,
	}
}

const dayMillis = 24 * 60 * 60 * 1000

// Decay computes the retrieval strength of a record at the given instant.
// It is a pure function of the record and the clock: nothing is persisted,
// and the same inputs always give the same answer.
//
// strength = 0.5^(age / halfLife) * (0.5 + 0.5*importance), floored.
// Age runs from the last touch (creation or last access, whichever is
// later), so recalling a memory resets its decay clock.
func Decay(rec *store.Record, now time.Time, p DecayParams) float64 {
	halfLife := p.HalfLifeDays + p.AccessBonusDays*float64(rec.AccessCount)
	if halfLife > p.MaxHalfLifeDays {
		halfLife = p.MaxHalfLifeDays
	}
	if halfLife <= 0 {
		return p.Floor
	}

	ref := rec.CreatedAt
	if rec.LastAccessed != nil && *rec.LastAccessed > ref {
		ref = *rec.LastAccessed
	}

	ageDays := float64(now.UnixMilli()-ref) / dayMillis
	if ageDays < 0 {
		ageDays = 0
	}

	raw := math.Pow(0.5, ageDays/halfLife)
	strength := raw * (0.5 + 0.5*rec.Importance)
	if strength < p.Floor {
		return p.Floor
	}
	return strength
}

package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// LineTolerance is the maximum difference between two market lines that are
// still considered the same line across bookmakers.
const LineTolerance = 0.01

// MarketCategory identifies the kind of market (totals, 1X2, handicap, ...).
type MarketCategory string

const (
	CategoryTotals    MarketCategory = "totals"
	CategoryMatchWin  MarketCategory = "match_winner"
	CategoryHandicap  MarketCategory = "handicap"
	CategoryResult1X2 MarketCategory = "1x2"
	CategoryBothScore MarketCategory = "both_to_score"
)

// OutcomePosition is the side of a market an outcome represents.
type OutcomePosition string

const (
	PositionOver     OutcomePosition = "OVER"
	PositionUnder    OutcomePosition = "UNDER"
	PositionHome     OutcomePosition = "HOME"
	PositionAway     OutcomePosition = "AWAY"
	PositionPrimary  OutcomePosition = "PRIMARY"
	PositionOpposite OutcomePosition = "OPPOSITE"
	PositionDraw     OutcomePosition = "DRAW"
)

// opposites pairs each two-way position with the one that settles against it.
// For three-way markets the normalizer maps "home" vs "draw or away" onto
// PRIMARY/OPPOSITE. DRAW has no opposite and is never paired.
var opposites = map[OutcomePosition]OutcomePosition{
	PositionOver:     PositionUnder,
	PositionUnder:    PositionOver,
	PositionHome:     PositionAway,
	PositionAway:     PositionHome,
	PositionPrimary:  PositionOpposite,
	PositionOpposite: PositionPrimary,
}

// Opposite returns the position that offsets p, and false when p has none.
func (p OutcomePosition) Opposite() (OutcomePosition, bool) {
	o, ok := opposites[p]
	return o, ok
}

// Outcome is one priced selection inside a market.
type Outcome struct {
	ID            string          `json:"id"`
	SourceEventID string          `json:"source_event_id"`
	Position      OutcomePosition `json:"position"`
	Odds          float64         `json:"odds"`
}

// Market groups the outcomes that share a category and line.
type Market struct {
	Category MarketCategory `json:"category"`
	Line     float64        `json:"line"`
	Outcomes []Outcome      `json:"outcomes"`
}

// SameLine reports whether two market lines match within LineTolerance.
func SameLine(a, b float64) bool {
	return math.Abs(a-b) < LineTolerance
}

// CanonicalEvent is one bookmaker's view of a real-world match. Values are
// treated as immutable once built; a newer event from the same bookmaker
// supersedes the previous one.
type CanonicalEvent struct {
	EventKey    string    `json:"event_key"`
	Bookmaker   string    `json:"bookmaker"`
	Markets     []Market  `json:"markets"`
	LastUpdated time.Time `json:"last_updated"`
}

// Validate rejects events that cannot be pooled.
func (e CanonicalEvent) Validate() error {
	if strings.TrimSpace(e.EventKey) == "" {
		return fmt.Errorf("%w: blank event key", ErrInvalidEvent)
	}
	if strings.TrimSpace(e.Bookmaker) == "" {
		return fmt.Errorf("%w: blank bookmaker for %s", ErrInvalidEvent, e.EventKey)
	}
	return nil
}

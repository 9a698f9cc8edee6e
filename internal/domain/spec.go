package domain

import "time"

// VenueKind distinguishes the two adapter families a symbol can belong to.
type VenueKind string

const (
	VenueDerivatives VenueKind = "derivatives"
	VenueSpot        VenueKind = "spot"
)

// InstrumentSpec is the immutable-after-fetch contract/spot rule set for a
// symbol. Cache refreshes entries on a one-hour TTL; engines hold a
// read-only copy taken at strategy start.
type InstrumentSpec struct {
	Symbol         string
	Venue          VenueKind
	BaseCoin       string
	QuoteCoin      string
	PricePlace     int
	VolumePlace    int
	MinTradeNum    float64
	SizeMultiplier float64
	MakerFeeRate   float64
	TakerFeeRate   float64
	Status         string // online/normal, offline, etc.
	FetchedAt      time.Time
}

// Fresh reports whether the entry is still within the one-hour TTL as of now.
func (s InstrumentSpec) Fresh(now time.Time) bool {
	return now.Sub(s.FetchedAt) <= time.Hour
}

// Key identifies a spec by (symbol, venue-kind).
type SpecKey struct {
	Symbol string
	Venue  VenueKind
}

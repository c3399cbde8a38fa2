package domain

import "time"

// DefaultLocationID is the external system's id for its default location
const DefaultLocationID = "00000000-0000-0000-0000-000000000000"

// Location is the local ranking/display view of an external location.
// Stock figures are never cached here; they are fetched live.
type Location struct {
	ExternalID string
	Code       string
	UseCount   int
	LastUsedAt *time.Time
	IsActive   bool
}

// MarkUsed bumps the ranking counters after the location took part in a movement
func (l *Location) MarkUsed(now time.Time) {
	at := now
	l.UseCount++
	l.LastUsedAt = &at
}

// CandidateLocation is a per-request snapshot of one product's stock at one location
type CandidateLocation struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	StockLevel   int    `json:"stock_level"`
	Available    int    `json:"available"`
	Allocated    int    `json:"allocated"`
	OnOrder      int    `json:"on_order"`
	MinimumLevel int    `json:"minimum_level"`
}

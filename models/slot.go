package models

import (
	"time"
)

const (
	SlotStatusOpen   = "open"
	SlotStatusClosed = "closed"
)

// Slot is a bookable time window for a service with finite capacity.
// Status is a cached projection of BookedCount and is re-derived on every
// mutation; Available is the separate admin-set switch.
type Slot struct {
	ID          string    `db:"id" json:"id"`
	ServiceID   string    `db:"service" json:"service_id"`
	StartTime   time.Time `db:"start_time" json:"start_time"`
	EndTime     time.Time `db:"end_time" json:"end_time"`
	Capacity    int       `db:"capacity" json:"capacity"`
	BookedCount int       `db:"booked_count" json:"booked_count"`
	Status      string    `db:"status" json:"status"`
	Available   bool      `db:"available" json:"available"`
}

// DeriveStatus returns the status implied by the current occupancy.
func (s *Slot) DeriveStatus() string {
	if s.BookedCount >= s.Capacity {
		return SlotStatusClosed
	}
	return SlotStatusOpen
}

// Overlaps reports whether the [start, end) windows of two slots intersect.
func (s *Slot) Overlaps(start, end time.Time) bool {
	return s.StartTime.Before(end) && start.Before(s.EndTime)
}

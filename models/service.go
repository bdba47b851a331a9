package models

import (
	"time"
)

const (
	CouponKindPercent = "percent"
	CouponKindFixed   = "fixed"
)

// Service is a bookable offering; DurationMinutes derives a slot's end time.
type Service struct {
	ID              string  `db:"id" json:"id"`
	Name            string  `db:"name" json:"name"`
	Description     string  `db:"description" json:"description,omitempty"`
	Price           float64 `db:"price" json:"price"`
	DurationMinutes int     `db:"duration_minutes" json:"duration_minutes"`
	Active          bool    `db:"active" json:"active"`
}

type Coupon struct {
	ID        string     `db:"id" json:"id"`
	Code      string     `db:"code" json:"code"`
	Kind      string     `db:"kind" json:"kind"`
	Value     float64    `db:"value" json:"value"`
	Active    bool       `db:"active" json:"active"`
	ExpiresAt *time.Time `db:"expires_at" json:"expires_at,omitempty"`
}

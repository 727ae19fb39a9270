package models

import (
	"time"

	"github.com/google/uuid"
)

// Organization is a tenant: one resort property.
type Organization struct {
	ID           uuid.UUID `json:"org_id"`
	Name         string    `json:"name"`
	Plan         string    `json:"plan"`
	PropertyName string    `json:"property_name,omitempty"`
	Latitude     *float64  `json:"latitude,omitempty"`
	Longitude    *float64  `json:"longitude,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// HasLocation reports whether the property coordinates are on record.
func (o *Organization) HasLocation() bool {
	return o.Latitude != nil && o.Longitude != nil
}

package models

import "fmt"

// Availability is one concrete bookable offer returned by the booking API.
// Resort and accommodation names are denormalized for display.
type Availability struct {
	ResortID              int     `json:"resort_id" db:"resort_id"`
	ResortName            string  `json:"resort_name" db:"resort_name"`
	AccommodationTypeID   int     `json:"accommodation_type_id" db:"accommodation_type_id"`
	AccommodationTypeName string  `json:"accommodation_type_name" db:"accommodation_type_name"`
	DateFrom              string  `json:"date_from" db:"date_from"` // YYYY-MM-DD
	DateTo                string  `json:"date_to" db:"date_to"`     // YYYY-MM-DD
	Nights                int     `json:"nights" db:"nights"`
	PriceTotal            float64 `json:"price_total" db:"price_total"`
	PricePerNight         float64 `json:"price_per_night" db:"price_per_night"`
	Available             bool    `json:"available" db:"available"`
	Link                  string  `json:"link" db:"link"`
}

// Key is the identity used to match offers across runs. Price is not part of
// the key: a price move alone is not a change.
func (a *Availability) Key() string {
	return fmt.Sprintf("%d-%d-%s-%s", a.ResortID, a.AccommodationTypeID, a.DateFrom, a.DateTo)
}

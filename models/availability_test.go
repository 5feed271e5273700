package models

import "testing"

func TestAvailabilityKeyExcludesPrice(t *testing.T) {
	a := Availability{ResortID: 3, AccommodationTypeID: 12, DateFrom: "2026-07-01", DateTo: "2026-07-08", PriceTotal: 900}
	b := a
	b.PriceTotal = 650

	if a.Key() != b.Key() {
		t.Errorf("keys differ on price alone: %q vs %q", a.Key(), b.Key())
	}
	if a.Key() != "3-12-2026-07-01-2026-07-08" {
		t.Errorf("key = %q", a.Key())
	}

	c := a
	c.DateFrom = "2026-07-02"
	if a.Key() == c.Key() {
		t.Error("keys must differ when dates differ")
	}
}

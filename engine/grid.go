package engine

import (
	"time"

	"staywatch/models"
)

// GridCell is one probe: a concrete (check-in, check-out) pair.
type GridCell struct {
	CheckIn  time.Time
	CheckOut time.Time
	Nights   int
}

// CheckInDate returns the check-in as YYYY-MM-DD.
func (c GridCell) CheckInDate() string { return models.FormatDate(c.CheckIn) }

// CheckOutDate returns the check-out as YYYY-MM-DD.
func (c GridCell) CheckOutDate() string { return models.FormatDate(c.CheckOut) }

// ExpandRange produces every (checkIn, checkIn+nights) pair with checkIn
// walking rangeFrom..rangeTo inclusive, keeping only pairs whose check-out
// still falls inside the range.
func ExpandRange(rangeFrom, rangeTo time.Time, nights int) []GridCell {
	if nights <= 0 {
		return nil
	}
	var cells []GridCell
	for day := rangeFrom; !day.After(rangeTo); day = day.AddDate(0, 0, 1) {
		checkOut := day.AddDate(0, 0, nights)
		if checkOut.After(rangeTo) {
			break
		}
		cells = append(cells, GridCell{CheckIn: day, CheckOut: checkOut, Nights: nights})
	}
	return cells
}

// ExpandGrid builds the full probe grid for a search: the union over all
// dateRanges x stayLengths. Overlapping date ranges are NOT deduplicated;
// the same pair may be probed twice and counts twice toward totalChecks.
func ExpandGrid(search *models.Search) []GridCell {
	var grid []GridCell
	for _, dr := range search.DateRanges {
		for _, nights := range search.StayLengths {
			grid = append(grid, ExpandRange(dr.From, dr.To, nights)...)
		}
	}
	return grid
}

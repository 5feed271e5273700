package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"staywatch/models"
)

// Notifier delivers a formatted summary of a search result.
type Notifier interface {
	SendNotification(ctx context.Context, search *models.Search, result *models.SearchResult) error
	SendError(ctx context.Context, search *models.Search, runErr error) error
}

// Subject builds the notification subject line for a result.
func Subject(search *models.Search, result *models.SearchResult) string {
	return fmt.Sprintf("StayWatch: %s - %d offers (%d new, %d removed)",
		search.Name,
		len(result.Availabilities),
		len(result.Changes.New),
		len(result.Changes.Removed),
	)
}

// Body renders the plain-text summary: counts first, then new offers with
// prices and deep links, then removed offers.
func Body(search *models.Search, result *models.SearchResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Search: %s\nChecked at: %s\n\n", search.Name, result.Timestamp.Format(time.RFC1123))
	fmt.Fprintf(&b, "Current offers: %d\n", len(result.Availabilities))
	fmt.Fprintf(&b, "New since last run: %d\n", len(result.Changes.New))
	fmt.Fprintf(&b, "Removed since last run: %d\n", len(result.Changes.Removed))

	if len(result.Changes.New) > 0 {
		b.WriteString("\nNew availability:\n")
		for _, a := range result.Changes.New {
			writeOffer(&b, a)
		}
	}
	if len(result.Changes.Removed) > 0 {
		b.WriteString("\nNo longer available:\n")
		for _, a := range result.Changes.Removed {
			fmt.Fprintf(&b, "  - %s, %s (%s to %s)\n",
				a.ResortName, a.AccommodationTypeName, a.DateFrom, a.DateTo)
		}
	}
	return b.String()
}

func writeOffer(b *strings.Builder, a models.Availability) {
	fmt.Fprintf(b, "  - %s, %s: %s to %s (%d nights) %.2f total (%.2f/night)\n    %s\n",
		a.ResortName, a.AccommodationTypeName, a.DateFrom, a.DateTo,
		a.Nights, a.PriceTotal, a.PricePerNight, a.Link)
}

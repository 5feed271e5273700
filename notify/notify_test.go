package notify

import (
	"context"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"staywatch/models"
)

func sampleResult() (*models.Search, *models.SearchResult) {
	search := &models.Search{
		ID:            uuid.New(),
		Name:          "july-week",
		Notifications: models.Notifications{Email: "alerts@example.com"},
	}
	offer := models.Availability{
		ResortID:              1,
		ResortName:            "Sunparks Kempense Meren",
		AccommodationTypeID:   10,
		AccommodationTypeName: "Comfort Cottage",
		DateFrom:              "2026-07-01",
		DateTo:                "2026-07-08",
		Nights:                7,
		PriceTotal:            910,
		PricePerNight:         130,
		Available:             true,
		Link:                  "https://booking.example/search?resort=1",
	}
	removed := offer
	removed.ResortID = 2
	removed.ResortName = "Sunparks De Haan"

	result := &models.SearchResult{
		ID:             uuid.New(),
		SearchID:       search.ID,
		Timestamp:      time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC),
		Availabilities: []models.Availability{offer},
		Changes: models.Changes{
			New:     []models.Availability{offer},
			Removed: []models.Availability{removed},
		},
	}
	return search, result
}

func TestSubject(t *testing.T) {
	search, result := sampleResult()
	got := Subject(search, result)
	for _, want := range []string{"july-week", "1 offers", "1 new", "1 removed"} {
		if !strings.Contains(got, want) {
			t.Errorf("subject %q missing %q", got, want)
		}
	}
}

func TestBodyContents(t *testing.T) {
	search, result := sampleResult()
	body := Body(search, result)

	for _, want := range []string{
		"Search: july-week",
		"New availability:",
		"Sunparks Kempense Meren",
		"910.00 total",
		"130.00/night",
		"https://booking.example/search?resort=1",
		"No longer available:",
		"Sunparks De Haan",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
}

func TestEmailNotifierDelivers(t *testing.T) {
	search, result := sampleResult()

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	n := NewEmailNotifier(SMTPConfig{Host: "mail.example.com", Port: 587, Sender: "noreply@example.com"})
	n.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	if err := n.SendNotification(context.Background(), search, result); err != nil {
		t.Fatalf("SendNotification failed: %v", err)
	}
	if gotAddr != "mail.example.com:587" {
		t.Errorf("addr = %q", gotAddr)
	}
	if gotFrom != "noreply@example.com" {
		t.Errorf("from = %q", gotFrom)
	}
	if len(gotTo) != 1 || gotTo[0] != "alerts@example.com" {
		t.Errorf("to = %v", gotTo)
	}
	msg := string(gotMsg)
	if !strings.Contains(msg, "Subject: "+Subject(search, result)) {
		t.Errorf("message missing subject header:\n%s", msg)
	}
	if !strings.Contains(msg, "To: alerts@example.com") {
		t.Errorf("message missing To header:\n%s", msg)
	}
}

func TestEmailNotifierUnconfigured(t *testing.T) {
	search, result := sampleResult()
	n := NewEmailNotifier(SMTPConfig{})
	if err := n.SendNotification(context.Background(), search, result); err == nil {
		t.Fatal("expected error when SMTP is not configured")
	}
}

func TestEmailNotifierMissingRecipient(t *testing.T) {
	search, result := sampleResult()
	search.Notifications.Email = ""
	n := NewEmailNotifier(SMTPConfig{Host: "mail.example.com", Port: 587, Sender: "noreply@example.com"})
	n.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		t.Fatal("send must not be called without a recipient")
		return nil
	}
	if err := n.SendNotification(context.Background(), search, result); err == nil {
		t.Fatal("expected error for missing recipient")
	}
}

func TestConsoleNotifier(t *testing.T) {
	search, result := sampleResult()
	var out strings.Builder
	n := &ConsoleNotifier{Out: &out}

	if err := n.SendNotification(context.Background(), search, result); err != nil {
		t.Fatalf("SendNotification failed: %v", err)
	}
	if !strings.Contains(out.String(), "july-week") {
		t.Errorf("console output missing search name:\n%s", out.String())
	}
}

package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"staywatch/httputil"
	"staywatch/models"
)

// Client checks availability for one (check-in, check-out) pair, optionally
// filtered by resort and accommodation-type ids. Implementations own session
// bootstrap and resort/type name resolution.
type Client interface {
	CheckAvailability(ctx context.Context, checkIn, checkOut string, resortIDs, accommodationTypeIDs []int) ([]models.Availability, error)
}

// Config holds the booking API endpoints and session tuning.
type Config struct {
	BaseURL     string
	MetadataTTL time.Duration
}

// HTTPClient talks to the booking API over a cookie session. The session is
// bootstrapped lazily on first use and re-bootstrapped when the upstream
// answers 401/403 (expired session cookie).
type HTTPClient struct {
	cfg    Config
	client *http.Client

	sessionMu sync.Mutex
	sessionOK bool

	meta *metadataCache
}

func NewHTTPClient(cfg Config) *HTTPClient {
	if cfg.MetadataTTL <= 0 {
		cfg.MetadataTTL = time.Hour
	}
	// Metadata scraping carries no session state, so it goes over a plain
	// client and never touches the session cookie jar.
	return &HTTPClient{
		cfg:    cfg,
		client: httputil.NewSessionClient(),
		meta:   newMetadataCache(httputil.NewAPIClient(), cfg.BaseURL, cfg.MetadataTTL),
	}
}

// searchResponse is the upstream wire shape, reduced to the fields the
// engine consumes.
type searchResponse struct {
	Results []struct {
		ResortID            int     `json:"resortId"`
		AccommodationTypeID int     `json:"accommodationTypeId"`
		DateFrom            string  `json:"dateFrom"`
		DateTo              string  `json:"dateTo"`
		PriceTotal          float64 `json:"priceTotal"`
		Available           bool    `json:"available"`
	} `json:"results"`
}

func (c *HTTPClient) CheckAvailability(ctx context.Context, checkIn, checkOut string, resortIDs, accommodationTypeIDs []int) ([]models.Availability, error) {
	if err := c.ensureSession(ctx); err != nil {
		return nil, fmt.Errorf("session bootstrap: %w", err)
	}

	params := url.Values{}
	params.Set("dateFrom", checkIn)
	params.Set("dateTo", checkOut)
	if len(resortIDs) > 0 {
		params.Set("resorts", joinIDs(resortIDs))
	}
	if len(accommodationTypeIDs) > 0 {
		params.Set("accommodationTypes", joinIDs(accommodationTypeIDs))
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/api/search?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		// Session cookie expired; force a fresh bootstrap on the next call.
		c.sessionMu.Lock()
		c.sessionOK = false
		c.sessionMu.Unlock()
		return nil, fmt.Errorf("booking API session rejected (%d)", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("booking API error %d: %s", resp.StatusCode, string(body))
	}

	var result searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	var avail []models.Availability
	for _, r := range result.Results {
		if !r.Available {
			continue
		}
		nights := nightsBetween(r.DateFrom, r.DateTo)
		a := models.Availability{
			ResortID:              r.ResortID,
			ResortName:            c.meta.ResortName(ctx, r.ResortID),
			AccommodationTypeID:   r.AccommodationTypeID,
			AccommodationTypeName: c.meta.AccommodationTypeName(ctx, r.AccommodationTypeID),
			DateFrom:              r.DateFrom,
			DateTo:                r.DateTo,
			Nights:                nights,
			PriceTotal:            r.PriceTotal,
			Available:             true,
			Link:                  c.deepLink(r.ResortID, r.AccommodationTypeID, r.DateFrom, r.DateTo),
		}
		if nights > 0 {
			a.PricePerNight = r.PriceTotal / float64(nights)
		}
		avail = append(avail, a)
	}
	return avail, nil
}

// ensureSession performs the initial GET that sets the upstream session
// cookies. Subsequent calls are no-ops until the session is invalidated.
func (c *HTTPClient) ensureSession(ctx context.Context) error {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	if c.sessionOK {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.cfg.BaseURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("bootstrap status %d", resp.StatusCode)
	}
	c.sessionOK = true
	log.Printf("Booking session established with %s", c.cfg.BaseURL)
	return nil
}

func (c *HTTPClient) deepLink(resortID, typeID int, dateFrom, dateTo string) string {
	params := url.Values{}
	params.Set("resort", strconv.Itoa(resortID))
	params.Set("accommodationType", strconv.Itoa(typeID))
	params.Set("dateFrom", dateFrom)
	params.Set("dateTo", dateTo)
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/search?" + params.Encode()
}

func joinIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}

func nightsBetween(from, to string) int {
	f, err1 := models.ParseDate(from)
	t, err2 := models.ParseDate(to)
	if err1 != nil || err2 != nil {
		return 0
	}
	return int(t.Sub(f).Hours() / 24)
}

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

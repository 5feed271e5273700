package booking

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// metadataCache resolves resort and accommodation-type ids to display names.
// The booking site does not expose a metadata API; names are scraped from the
// search page's filter dropdowns and cached with a TTL.
type metadataCache struct {
	client  *http.Client
	baseURL string
	ttl     time.Duration

	mu        sync.Mutex
	resorts   map[int]string
	types     map[int]string
	fetchedAt time.Time
}

func newMetadataCache(client *http.Client, baseURL string, ttl time.Duration) *metadataCache {
	return &metadataCache{
		client:  client,
		baseURL: baseURL,
		ttl:     ttl,
		resorts: map[int]string{},
		types:   map[int]string{},
	}
}

// ResortName returns the display name for a resort id, or "Resort <id>" when
// metadata is unavailable. Lookup failures never fail a probe.
func (m *metadataCache) ResortName(ctx context.Context, id int) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshLocked(ctx)
	if name, ok := m.resorts[id]; ok {
		return name
	}
	return fmt.Sprintf("Resort %d", id)
}

// AccommodationTypeName returns the display name for an accommodation type id.
func (m *metadataCache) AccommodationTypeName(ctx context.Context, id int) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshLocked(ctx)
	if name, ok := m.types[id]; ok {
		return name
	}
	return fmt.Sprintf("Type %d", id)
}

func (m *metadataCache) refreshLocked(ctx context.Context) {
	if time.Since(m.fetchedAt) < m.ttl && len(m.resorts) > 0 {
		return
	}

	resorts, types, err := m.fetch(ctx)
	if err != nil {
		log.Printf("Warning: metadata refresh failed: %v", err)
		return
	}
	m.resorts = resorts
	m.types = types
	m.fetchedAt = time.Now()
	log.Printf("Booking metadata refreshed: %d resorts, %d accommodation types", len(resorts), len(types))
}

func (m *metadataCache) fetch(ctx context.Context) (map[int]string, map[int]string, error) {
	endpoint := strings.TrimRight(m.baseURL, "/") + "/search"
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("metadata page status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("parse metadata page: %w", err)
	}

	resorts := parseOptions(doc, "select#resort option")
	types := parseOptions(doc, "select#accommodationType option")
	if len(resorts) == 0 && len(types) == 0 {
		return nil, nil, fmt.Errorf("no filter options found on metadata page")
	}
	return resorts, types, nil
}

func parseOptions(doc *goquery.Document, selector string) map[int]string {
	out := map[int]string{}
	doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		val, ok := sel.Attr("value")
		if !ok {
			return
		}
		id, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return
		}
		name := strings.TrimSpace(sel.Text())
		if name != "" {
			out[id] = name
		}
	})
	return out
}

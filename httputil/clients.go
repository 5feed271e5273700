package httputil

import (
	"net/http"
	"net/http/cookiejar"
	"time"
)

// NewSessionClient returns an HTTP client with a cookie jar for the booking
// site's session handshake. The timeout must stay below the retry backoff
// cap so a hung probe fails into the retry path.
func NewSessionClient() *http.Client {
	jar, _ := cookiejar.New(nil)
	return &http.Client{
		Timeout: 15 * time.Second,
		Jar:     jar,
	}
}

// NewAPIClient returns a plain client for direct calls that carry no session
// state.
func NewAPIClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

package equity

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// parseBaseURL reads api_url from config, falling back to def, and strips any trailing slash.
func parseBaseURL(config map[string]interface{}, def string) (string, error) {
	raw := def
	if v, ok := config["api_url"].(string); ok && v != "" {
		raw = v
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidAPIURL, raw)
	}
	return strings.TrimRight(raw, "/"), nil
}

// loadLocation returns the named zone, or UTC when the tz database is missing.
func loadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

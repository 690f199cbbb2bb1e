// Package geoip maps client addresses to ISO country codes for locale
// detection and access logs.
package geoip

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/oschwald/geoip2-golang"
)

// ErrUnavailable is returned when the resolver is not initialized.
var ErrUnavailable = errors.New("geoip resolver unavailable")

// Resolver provides country lookups backed by a MaxMind GeoIP2 or GeoLite2
// country database.
type Resolver struct {
	reader *geoip2.Reader

	mu    sync.Mutex
	cache map[string]string
}

// cacheLimit bounds the per-address cache; it is cleared when full.
const cacheLimit = 4096

// NewResolver opens the database at path. An empty path yields a nil
// resolver, whose lookups report ErrUnavailable.
func NewResolver(path string) (*Resolver, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geoip: open database: %w", err)
	}
	return &Resolver{reader: reader, cache: make(map[string]string)}, nil
}

// CountryCode returns the ISO country code for ip. Private, loopback and
// link-local addresses resolve to "" without touching the database.
func (r *Resolver) CountryCode(ip string) (string, error) {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return "", fmt.Errorf("geoip: invalid ip %q", ip)
	}
	if !routable(parsed) {
		return "", nil
	}
	if r == nil || r.reader == nil {
		return "", ErrUnavailable
	}
	key := parsed.String()
	if code, ok := r.cached(key); ok {
		return code, nil
	}
	record, err := r.reader.Country(parsed)
	if err != nil {
		return "", fmt.Errorf("geoip: lookup country: %w", err)
	}
	code := ""
	if record != nil {
		code = record.Country.IsoCode
	}
	r.remember(key, code)
	return code, nil
}

func (r *Resolver) cached(key string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	code, ok := r.cache[key]
	return code, ok
}

func (r *Resolver) remember(key, code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cache == nil || len(r.cache) >= cacheLimit {
		r.cache = make(map[string]string)
	}
	r.cache[key] = code
}

func routable(ip net.IP) bool {
	return !(ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsUnspecified())
}

// Close closes the underlying database reader.
func (r *Resolver) Close() error {
	if r == nil || r.reader == nil {
		return nil
	}
	return r.reader.Close()
}

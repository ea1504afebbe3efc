// Package geoip resolves a country code for an IP address when the edge did
// not supply one, and turns country codes into display names.
package geoip

import (
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/oschwald/geoip2-golang"
	"github.com/pariz/gountries"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// UnknownCountry is the bucket for unresolved countries.
const UnknownCountry = "unknown"

var (
	geoDB  *geoip2.Reader
	dbPath string
	mu     sync.RWMutex
	logger = slog.Default()

	countryIndex = gountries.New()
	upperCaser   = cases.Upper(language.AmericanEnglish)
)

// Init opens the GeoLite2 country database at path. A missing file is not an
// error: lookups simply return "".
func Init(path string, l *slog.Logger) {
	mu.Lock()
	defer mu.Unlock()

	if l != nil {
		logger = l
	}
	dbPath = path
	geoDB = open(path)
}

func open(path string) *geoip2.Reader {
	if path == "" {
		logger.Debug("GeoIP database path not configured - GeoIP lookups disabled")
		return nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Info("GeoLite2 database not found - GeoIP lookups disabled",
			slog.String("path", path),
			slog.String("hint", "Download from https://www.maxmind.com/en/geolite2/signup"))
		return nil
	} else if err != nil {
		logger.Warn("Error checking GeoLite2 database file",
			slog.String("path", path),
			slog.Any("error", err))
		return nil
	}

	db, err := geoip2.Open(path)
	if err != nil {
		logger.Error("Failed to open GeoLite2 database",
			slog.String("path", path),
			slog.Any("error", err))
		return nil
	}

	logger.Info("GeoLite2 database initialized successfully", slog.String("path", path))
	return db
}

// Reload reopens the database from the last configured path.
func Reload() {
	mu.Lock()
	defer mu.Unlock()

	if geoDB != nil {
		geoDB.Close()
	}
	geoDB = open(dbPath)
}

// Close releases the reader.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if geoDB != nil {
		geoDB.Close()
		geoDB = nil
	}
}

// CountryCode returns the ISO 3166-1 alpha-2 code for ip, or "" when the
// database is unavailable or the address is not found.
func CountryCode(ip string) string {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return ""
	}

	mu.RLock()
	defer mu.RUnlock()
	if geoDB == nil {
		return ""
	}

	record, err := geoDB.Country(parsed)
	if err != nil {
		return ""
	}
	return record.Country.IsoCode
}

// NormalizeCode upper-cases a two letter code. Cloudflare's "XX" (unknown)
// and "T1" (Tor) map to "".
func NormalizeCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 2 || code == "XX" || code == "T1" {
		return ""
	}
	return code
}

// CountryName returns the common English name for an alpha-2 code.
func CountryName(code string) string {
	if code == "" || strings.EqualFold(code, UnknownCountry) {
		return "Unknown"
	}
	country, err := countryIndex.FindCountryByAlpha(strings.ToUpper(code))
	if err != nil {
		return upperCaser.String(code)
	}
	return country.Name.Common
}

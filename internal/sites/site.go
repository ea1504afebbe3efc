package sites

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"siteworker/internal/apierror"
)

// ErrUnknownSite is returned when a slug has not been provisioned.
var ErrUnknownSite = apierror.New(fiber.StatusNotFound, "unknown site")

// ErrOriginNotAllowed is returned when a request origin is not on any allow-list.
var ErrOriginNotAllowed = apierror.New(fiber.StatusForbidden, "origin not allowed")

// Site is a tenant whose analytics and comments are isolated by ID.
type Site struct {
	ID           uint     `gorm:"primaryKey;autoIncrement" json:"id"`
	Slug         string   `gorm:"uniqueIndex;not null" json:"slug"`
	PrimaryHost  string   `gorm:"not null" json:"primary_host"`
	AllowedHosts []string `gorm:"serializer:json;type:text" json:"allowed_hosts"`
	CreatedAt    int64    `gorm:"not null" json:"created_at"`
}

func (Site) TableName() string { return "sites" }

// FindBySlug resolves a tenant by slug, returning ErrUnknownSite when absent.
func FindBySlug(db *gorm.DB, slug string) (*Site, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, ErrUnknownSite
	}

	var site Site
	if err := db.Where("slug = ?", slug).First(&site).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownSite
		}
		return nil, fmt.Errorf("unexpected error querying site: %w", err)
	}
	return &site, nil
}

// FindByID retrieves a site by its primary key.
func FindByID(db *gorm.DB, id uint) (*Site, error) {
	var site Site
	if err := db.First(&site, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownSite
		}
		return nil, err
	}
	return &site, nil
}

// List returns every provisioned site ordered by slug.
func List(db *gorm.DB) ([]Site, error) {
	var all []Site
	if err := db.Order("slug ASC").Find(&all).Error; err != nil {
		return nil, fmt.Errorf("failed to get sites: %w", err)
	}
	return all, nil
}

// Create provisions a new site. Hosts are normalized to lowercase bare hostnames.
func Create(db *gorm.DB, site *Site) error {
	site.Slug = strings.TrimSpace(site.Slug)
	if site.Slug == "" {
		return errors.New("site slug cannot be empty")
	}
	site.PrimaryHost = NormalizeHost(site.PrimaryHost)
	if site.PrimaryHost == "" {
		return errors.New("site primary host cannot be empty")
	}

	hosts := make([]string, 0, len(site.AllowedHosts))
	for _, h := range site.AllowedHosts {
		if n := NormalizeHost(h); n != "" {
			hosts = append(hosts, n)
		}
	}
	site.AllowedHosts = hosts
	if site.CreatedAt == 0 {
		site.CreatedAt = time.Now().UTC().Unix()
	}

	return sqlite.PerformWrite(slog.Default(), db, func(tx *gorm.DB) error {
		return tx.Create(site).Error
	})
}

// HostAllowed reports whether host may talk to this site: its primary host,
// one of its own allowed hosts, or a host on the global allow-list.
func (s *Site) HostAllowed(host string, global []string) bool {
	host = NormalizeHost(host)
	if host == "" {
		return false
	}
	if host == s.PrimaryHost {
		return true
	}
	for _, h := range s.AllowedHosts {
		if h == host {
			return true
		}
	}
	for _, h := range global {
		if h == host {
			return true
		}
	}
	return false
}

// CheckOrigin validates an Origin header value. An absent origin is accepted;
// a present one must resolve to an allowed host.
func (s *Site) CheckOrigin(origin string, global []string) error {
	if origin == "" {
		return nil
	}
	if !s.HostAllowed(OriginHost(origin), global) {
		return ErrOriginNotAllowed
	}
	return nil
}

// OriginHost extracts the hostname from an Origin header value.
func OriginHost(origin string) string {
	origin = strings.TrimSpace(origin)
	if origin == "" || origin == "null" {
		return ""
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return NormalizeHost(origin)
	}
	return NormalizeHost(parsed.Hostname())
}

// NormalizeHost lowercases a host and strips any port.
func NormalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.Trim(host, "[]")
}

// AnyHostAllowed reports whether host is allowed for at least one site or
// globally. Used for CORS preflights, which carry no site slug.
func AnyHostAllowed(db *gorm.DB, host string, global []string) (bool, error) {
	host = NormalizeHost(host)
	if host == "" {
		return false, nil
	}
	for _, h := range global {
		if h == host {
			return true, nil
		}
	}

	all, err := List(db)
	if err != nil {
		return false, err
	}
	for i := range all {
		if all[i].HostAllowed(host, nil) {
			return true, nil
		}
	}
	return false, nil
}

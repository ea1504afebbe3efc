package jobs

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/gorm"

	"siteworker/internal/config"
	"siteworker/internal/pkg/geoip"
	"siteworker/internal/settings"
)

const (
	// GeoLiteUpdateInterval matches MaxMind's weekly release cadence.
	GeoLiteUpdateInterval = 7 * 24 * time.Hour
	// MaxMindDownloadURL downloads the country edition, which is all the
	// resolver needs.
	MaxMindDownloadURL = "https://download.maxmind.com/app/geoip_download?edition_id=GeoLite2-Country&license_key=%s&suffix=tar.gz"
	// KeyGeoLiteLastUpdate records the last successful refresh as Unix seconds.
	KeyGeoLiteLastUpdate = "geolite.last_update"

	downloadTimeout = 2 * time.Minute
)

// GeoLiteUpdaterJob refreshes the country database when MaxMind credentials
// are stored in settings. Without credentials it does nothing.
type GeoLiteUpdaterJob struct {
	conn       ConnectionProvider
	logger     *slog.Logger
	cfg        *config.Config
	httpClient *http.Client
	now        func() time.Time
}

func NewGeoLiteUpdaterJob(conn ConnectionProvider, logger *slog.Logger, cfg *config.Config) *GeoLiteUpdaterJob {
	return &GeoLiteUpdaterJob{
		conn:       conn,
		logger:     logger,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: downloadTimeout},
		now:        time.Now,
	}
}

// Credentials returns the stored MaxMind account id and license key.
func Credentials(db *gorm.DB) (accountID, licenseKey string) {
	return settings.String(db, settings.KeyGeoLiteAccountID, ""),
		settings.String(db, settings.KeyGeoLiteLicenseKey, "")
}

// Run downloads a fresh database when credentials exist and the last
// refresh is older than GeoLiteUpdateInterval.
func (j *GeoLiteUpdaterJob) Run() error {
	db := j.conn.GetConnection()

	accountID, licenseKey := Credentials(db)
	if accountID == "" || licenseKey == "" {
		j.logger.Debug("GeoLite credentials not configured, skipping update")
		return nil
	}

	lastUpdate := time.Unix(int64(settings.Int(db, KeyGeoLiteLastUpdate, 0)), 0)
	if j.now().Sub(lastUpdate) < GeoLiteUpdateInterval {
		j.logger.Debug("GeoLite database is up to date", slog.Time("last_update", lastUpdate))
		return nil
	}

	j.logger.Info("Starting GeoLite database update", slog.Time("last_update", lastUpdate))

	if err := j.downloadAndUpdate(licenseKey); err != nil {
		j.logger.Error("Failed to update GeoLite database", slog.Any("error", err))
		return err
	}

	geoip.Reload()

	if err := settings.SetValue(db, KeyGeoLiteLastUpdate, j.now().UTC().Unix()); err != nil {
		j.logger.Error("Failed to record GeoLite update time", slog.Any("error", err))
	}

	j.logger.Info("GeoLite database updated successfully")
	return nil
}

func (j *GeoLiteUpdaterJob) downloadAndUpdate(licenseKey string) error {
	geoDBPath := j.cfg.GeoDBPath
	if geoDBPath == "" {
		geoDBPath = filepath.Join("storage", "GeoLite2-Country.mmdb")
	}

	if err := os.MkdirAll(filepath.Dir(geoDBPath), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(MaxMindDownloadURL, licenseKey), nil)
	if err != nil {
		return fmt.Errorf("failed to build download request: %w", err)
	}

	resp, err := j.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download GeoLite database: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status: %d", resp.StatusCode)
	}

	return extractMMDB(resp.Body, geoDBPath)
}

// extractMMDB writes the first .mmdb entry of a tar.gz stream to destPath.
// The file is staged next to the destination and renamed into place.
func extractMMDB(archive io.Reader, destPath string) error {
	gzr, err := gzip.NewReader(archive)
	if err != nil {
		return fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return fmt.Errorf("no .mmdb file found in archive")
		}
		if err != nil {
			return fmt.Errorf("failed to read tar: %w", err)
		}
		if !strings.HasSuffix(header.Name, ".mmdb") {
			continue
		}

		tmp := destPath + ".tmp"
		outFile, err := os.Create(tmp)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		if _, err := io.Copy(outFile, tr); err != nil {
			outFile.Close()
			os.Remove(tmp)
			return fmt.Errorf("failed to extract file: %w", err)
		}
		if err := outFile.Close(); err != nil {
			os.Remove(tmp)
			return fmt.Errorf("failed to close output file: %w", err)
		}
		return os.Rename(tmp, destPath)
	}
}

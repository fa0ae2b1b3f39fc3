// validate.go: validation of loaded settings.
package conf

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateSettings checks loaded settings for misconfiguration that would
// only show up later as confusing runtime failures.
func ValidateSettings(settings *Settings) error {
	var errs []string

	if err := validateSiteSettings(&settings.Site); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateSyncSettings(&settings.Sync); err != nil {
		errs = append(errs, err.Error())
	}
	if settings.Store.SQLite.Enabled && settings.Store.SQLite.Path == "" {
		errs = append(errs, "store.sqlite.path must be set when the SQLite store is enabled")
	}
	if settings.Telemetry.Enabled && settings.Telemetry.Listen == "" {
		errs = append(errs, "telemetry.listen must be set when telemetry is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateSiteSettings(site *SiteSettings) error {
	if site.URL == "" {
		// Allowed: commands that only inspect the local queue work without a
		// site binding.
		return nil
	}
	u, err := url.Parse(site.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("site.url %q is not a valid absolute URL", site.URL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("site.url must use http or https, got %q", u.Scheme)
	}
	return nil
}

func validateSyncSettings(sync *SyncSettings) error {
	if sync.Interval <= 0 {
		return fmt.Errorf("sync.interval must be positive, got %s", sync.Interval)
	}
	for name, interval := range sync.PerJobInterval {
		if interval <= 0 {
			return fmt.Errorf("sync.perjobinterval.%s must be positive, got %s", name, interval)
		}
	}
	return nil
}

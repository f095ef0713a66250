package config

import (
	"fmt"
	"strings"
)

// Normalize canonicalizes enumerated fields in place and returns warnings for coerced values.
func Normalize(c *Config) []string {
	var warnings []string

	if raw := string(c.Retry.Mode); strings.TrimSpace(raw) != "" {
		mode := NormalizeRetryBackoff(raw)
		switch {
		case mode == "":
			warnings = append(warnings, warnUnknown("retry.mode", raw, string(RetryBackoffExponential)))
			c.Retry.Mode = RetryBackoffExponential
		case mode != c.Retry.Mode:
			warnings = append(warnings, warnChanged("retry.mode", raw, string(mode)))
			c.Retry.Mode = mode
		}
	}

	if raw := string(c.Images.Format); strings.TrimSpace(raw) != "" {
		f := NormalizeImageFormat(raw)
		switch {
		case f == "":
			warnings = append(warnings, warnUnknown("images.format", raw, string(ImageFormatJPEG)))
			c.Images.Format = ImageFormatJPEG
		case f != c.Images.Format:
			warnings = append(warnings, warnChanged("images.format", raw, string(f)))
			c.Images.Format = f
		}
	}
	for i, f := range c.Images.ExtraFormats {
		c.Images.ExtraFormats[i] = strings.ToLower(strings.TrimSpace(f))
	}

	if c.Monitoring != nil {
		c.Monitoring.Logging.Level = NormalizeLogLevel(string(c.Monitoring.Logging.Level))
		c.Monitoring.Logging.Format = NormalizeLogFormat(string(c.Monitoring.Logging.Format))
	}

	for i := range c.Routes {
		r := &c.Routes[i]
		r.Template = strings.ToLower(strings.TrimSpace(r.Template))
		if r.Path != "/" {
			r.Path = strings.TrimSuffix(r.Path, "/")
		}
	}

	if c.Build.Concurrency < 0 {
		c.Build.Concurrency = 0
	}
	return warnings
}

func warnChanged(field, from, to string) string {
	return fmt.Sprintf("normalized %s from '%s' to '%s'", field, from, to)
}

func warnUnknown(field, value, fallback string) string {
	return fmt.Sprintf("unknown %s '%s', defaulting to %s", field, value, fallback)
}

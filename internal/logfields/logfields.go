package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyBuildID    = "build_id"
	KeyRoute      = "route"
	KeyTemplate   = "template"
	KeyKind       = "kind"
	KeyQuery      = "query"
	KeyEntryID    = "entry_id"
	KeyAsset      = "asset"
	KeyFormat     = "format"
	KeyCacheKey   = "cache_key"
	KeyAttempt    = "attempt"
	KeyCount      = "count"
	KeyPath       = "path"
	KeyURL        = "url"
	KeyStatus     = "status"
	KeyTrigger    = "trigger"
	KeyDurationMS = "duration_ms"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func BuildID(id string) slog.Attr     { return slog.String(KeyBuildID, id) }
func Route(path string) slog.Attr     { return slog.String(KeyRoute, path) }
func Template(name string) slog.Attr  { return slog.String(KeyTemplate, name) }
func Kind(k string) slog.Attr         { return slog.String(KeyKind, k) }
func Query(name string) slog.Attr     { return slog.String(KeyQuery, name) }
func EntryID(id string) slog.Attr     { return slog.String(KeyEntryID, id) }
func Asset(id string) slog.Attr       { return slog.String(KeyAsset, id) }
func Format(f string) slog.Attr       { return slog.String(KeyFormat, f) }
func CacheKey(k string) slog.Attr     { return slog.String(KeyCacheKey, k) }
func Attempt(n int) slog.Attr         { return slog.Int(KeyAttempt, n) }
func Count(n int) slog.Attr           { return slog.Int(KeyCount, n) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func URL(u string) slog.Attr          { return slog.String(KeyURL, u) }
func Status(code int) slog.Attr       { return slog.Int(KeyStatus, code) }
func Trigger(t string) slog.Attr      { return slog.String(KeyTrigger, t) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}

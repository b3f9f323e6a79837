package analytics

import (
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/marketplace-settlement/pkg/errors"
)

const (
	defaultPreset = "30d"
	// Bounds BigQuery scan cost for explicit ranges.
	maxLedgerWindow = 366 * 24 * time.Hour
	dateOnlyLayout  = "2006-01-02"
)

var timeNowUTC = func() time.Time {
	return time.Now().UTC()
}

var presets = map[string]time.Duration{
	"1d":   24 * time.Hour,
	"7d":   7 * 24 * time.Hour,
	"30d":  30 * 24 * time.Hour,
	"90d":  90 * 24 * time.Hour,
	"365d": 365 * 24 * time.Hour,
}

// resolveAnalyticsRange reads either from/to (RFC3339 or YYYY-MM-DD, UTC) or
// a preset ending now. A date-only "to" covers that whole day.
func resolveAnalyticsRange(r *http.Request, now time.Time) (time.Time, time.Time, error) {
	query := r.URL.Query()
	from := strings.TrimSpace(query.Get("from"))
	to := strings.TrimSpace(query.Get("to"))

	if from == "" && to == "" {
		preset := strings.ToLower(strings.TrimSpace(query.Get("preset")))
		if preset == "" {
			preset = defaultPreset
		}
		duration, ok := presets[preset]
		if !ok {
			return time.Time{}, time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid preset").
				WithDetails(map[string]any{"field": "preset", "allowed": []string{"1d", "7d", "30d", "90d", "365d"}})
		}
		return now.Add(-duration), now, nil
	}

	if from == "" || to == "" {
		return time.Time{}, time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "from and to must be provided together")
	}
	start, _, err := parseBound(from, "from")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, dateOnly, err := parseBound(to, "to")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if dateOnly {
		end = end.Add(24 * time.Hour)
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "end must be after start")
	}
	if end.Sub(start) > maxLedgerWindow {
		return time.Time{}, time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "range may not exceed 366 days")
	}
	return start, end, nil
}

func parseBound(raw, field string) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), false, nil
	}
	if t, err := time.Parse(dateOnlyLayout, raw); err == nil {
		return t.UTC(), true, nil
	}
	return time.Time{}, false, pkgerrors.New(pkgerrors.CodeValidation, "invalid "+field+" timestamp").
		WithDetails(map[string]any{"field": field})
}

package source

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"fleet-monitor/speedwatch/internal/domain"
)

// AIS reports 511 when the true heading is not available.
const headingNotAvailable = 511

// AIS reports 102.3 knots when speed over ground is not available.
const speedNotAvailable = 102.3

var ErrNoLocation = errors.New("no location report")

var navStatusText = map[int]string{
	0:  "under way using engine",
	1:  "at anchor",
	2:  "not under command",
	3:  "restricted manoeuverability",
	4:  "constrained by her draught",
	5:  "moored",
	6:  "aground",
	7:  "engaged in fishing",
	8:  "under way sailing",
	14: "AIS-SART active",
	15: "not defined",
}

// ParseLocation extracts the newest location report for mmsi from either a
// single GeoJSON feature, a feature collection or a flat record.
func ParseLocation(payload any, mmsi string) (domain.VesselReading, error) {
	var (
		best  domain.VesselReading
		found bool
	)
	walkJSON(payload, func(item map[string]any) {
		r, ok := parseReport(item)
		if !ok || r.ID != mmsi {
			return
		}
		if !found || r.Timestamp.After(best.Timestamp) {
			best = r
			found = true
		}
	})
	if !found {
		return domain.VesselReading{}, fmt.Errorf("%w for %s", ErrNoLocation, mmsi)
	}
	if best.Speed >= speedNotAvailable {
		return domain.VesselReading{}, fmt.Errorf("speed not available for %s", mmsi)
	}
	return best, nil
}

func parseReport(item map[string]any) (domain.VesselReading, bool) {
	props, _ := item["properties"].(map[string]any)
	if props == nil {
		props = item
	}

	sog, ok := getNumber(props, "sog", "speed")
	if !ok {
		return domain.VesselReading{}, false
	}
	mmsi := getMMSI(props, "mmsi")
	if mmsi == "" {
		mmsi = getMMSI(item, "mmsi")
	}
	if mmsi == "" {
		return domain.VesselReading{}, false
	}

	r := domain.VesselReading{
		ID:    mmsi,
		Speed: sog,
	}
	if ts := getTimestamp(props, "timestampExternal", "locUpdateTimestamp", "time"); ts > 0 {
		r.Timestamp = time.Unix(ts, 0).UTC()
	}
	if pos, ok := parsePosition(item); ok {
		r.Position = &pos
	}
	if h, ok := getNumber(props, "heading"); ok && h != headingNotAvailable {
		r.Heading = &h
	}
	if ns, ok := getNumber(props, "navStat"); ok {
		r.RawStatus = navStatusText[int(ns)]
	}
	return r, true
}

func parsePosition(item map[string]any) (domain.Position, bool) {
	if geometry, ok := item["geometry"].(map[string]any); ok {
		coords, ok := geometry["coordinates"].([]any)
		if ok && len(coords) >= 2 {
			lon, okLon := toFloat64(coords[0])
			lat, okLat := toFloat64(coords[1])
			if okLon && okLat {
				return domain.Position{Latitude: lat, Longitude: lon}, true
			}
		}
	}
	lat, okLat := getNumber(item, "lat", "latitude")
	lon, okLon := getNumber(item, "lon", "lng", "longitude")
	if okLat && okLon {
		return domain.Position{Latitude: lat, Longitude: lon}, true
	}
	return domain.Position{}, false
}

func walkJSON(node any, fn func(map[string]any)) {
	switch value := node.(type) {
	case map[string]any:
		fn(value)
		for _, child := range value {
			walkJSON(child, fn)
		}
	case []any:
		for _, child := range value {
			walkJSON(child, fn)
		}
	}
}

func getNumber(item map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		raw, ok := item[key]
		if !ok || raw == nil {
			continue
		}
		if value, ok := toFloat64(raw); ok {
			return value, true
		}
	}
	return 0, false
}

func getMMSI(item map[string]any, keys ...string) string {
	if item == nil {
		return ""
	}
	for _, key := range keys {
		raw, ok := item[key]
		if !ok || raw == nil {
			continue
		}
		if mmsi := toMMSI(raw); mmsi != "" {
			return mmsi
		}
	}
	return ""
}

func toMMSI(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
	case float64:
		return strconv.FormatInt(int64(v), 10)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	}
	return ""
}

func getTimestamp(item map[string]any, keys ...string) int64 {
	for _, key := range keys {
		raw, ok := item[key]
		if !ok || raw == nil {
			continue
		}
		if ts := toTimestamp(raw); ts > 0 {
			return ts
		}
	}
	return 0
}

func toTimestamp(value any) int64 {
	switch v := value.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return normalizeTimestamp(i)
		}
		if f, err := v.Float64(); err == nil {
			return normalizeTimestamp(int64(f))
		}
	case float64:
		return normalizeTimestamp(int64(v))
	case int64:
		return normalizeTimestamp(v)
	case int:
		return normalizeTimestamp(int64(v))
	case string:
		s := strings.TrimSpace(v)
		if parsed, err := strconv.ParseInt(s, 10, 64); err == nil {
			return normalizeTimestamp(parsed)
		}
		if parsed, err := time.Parse(time.RFC3339, s); err == nil {
			return parsed.Unix()
		}
	}
	return 0
}

// normalizeTimestamp accepts seconds, milliseconds or microseconds.
func normalizeTimestamp(ts int64) int64 {
	switch {
	case ts > 1_000_000_000_000_000:
		return ts / 1_000_000
	case ts > 1_000_000_000_000:
		return ts / 1_000
	default:
		return ts
	}
}

func toFloat64(value any) (float64, bool) {
	switch v := value.(type) {
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

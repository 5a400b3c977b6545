package worker

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/2010089698/sora2-251007-3/internal/domain"
	"github.com/2010089698/sora2-251007-3/internal/providers/sora"
)

// mergeContent folds the content fields of a completed observation into job.
// Absent values keep what was stored before; ready_at is only ever set once.
func mergeContent(job *domain.VideoJob, video *sora.Video, now time.Time) {
	if name := video.VariantName(); name != "" {
		job.ContentVariant = name
	} else if job.ContentVariant == "" {
		job.ContentVariant = domain.DefaultContentVariant
	}
	if token := video.Token(); token != "" {
		job.ContentToken = token
	}
	if expires, ok := parseExpiry(video.TokenExpiry()); ok {
		job.ContentTokenExpiresAt = &expires
	}
	if job.ContentReadyAt == nil {
		ready := now
		job.ContentReadyAt = &ready
	}
}

// Numeric expiries outside years 1..9999 cannot be stored as timestamps.
var (
	minExpiryUnix = float64(time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC).Unix())
	maxExpiryUnix = float64(time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC).Unix())
)

var expiryLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
}

// parseExpiry accepts ISO-8601 strings, with or without an offset, and unix
// seconds. Layouts without an offset are read as UTC. Out of range numbers
// are treated as unparseable.
func parseExpiry(raw json.RawMessage) (time.Time, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, false
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		text = strings.TrimSpace(text)
		if strings.HasSuffix(text, "Z") {
			text = strings.TrimSuffix(text, "Z") + "+00:00"
		}
		for _, layout := range expiryLayouts {
			if t, err := time.Parse(layout, text); err == nil {
				return t.UTC(), true
			}
		}
		return time.Time{}, false
	}
	var seconds float64
	if err := json.Unmarshal(raw, &seconds); err == nil && seconds >= minExpiryUnix && seconds <= maxExpiryUnix {
		whole, frac := math.Modf(seconds)
		return time.Unix(int64(whole), int64(frac*float64(time.Second))).UTC(), true
	}
	return time.Time{}, false
}

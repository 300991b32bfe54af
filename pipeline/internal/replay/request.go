package replay

import (
	"strconv"
	"strings"
	"time"

	"github.com/telhawk-systems/eventvault/pipeline/internal/models"
)

// Mode names a selection mode.
type Mode string

const (
	ModeTimeWindow Mode = "time-window"
	ModeIngestion  Mode = "ingestion"
	ModeDLQDomain  Mode = "dlq-domain"
	ModeDLQSystem  Mode = "dlq-system"
)

// Modes lists every selection mode.
var Modes = []Mode{ModeTimeWindow, ModeIngestion, ModeDLQDomain, ModeDLQSystem}

// ParseTime accepts RFC3339 (fractional seconds allowed) or epoch
// milliseconds.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), true
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), true
	}
	return time.Time{}, false
}

// window is a validated [from, to) range.
type window struct {
	from, to time.Time
}

// validate checks req for mode and returns the bad-request reason, or "".
func validate(mode Mode, req models.ReplayRequest) (window, string) {
	if strings.TrimSpace(req.Reason) == "" {
		return window{}, models.ReplayBadRequest("reason")
	}

	switch mode {
	case ModeTimeWindow:
		from, ok := ParseTime(req.FromTime)
		if !ok {
			return window{}, models.ReplayBadRequest("fromTime")
		}
		to, ok := ParseTime(req.ToTime)
		if !ok {
			return window{}, models.ReplayBadRequest("toTime")
		}
		if !from.Before(to) {
			return window{}, models.ReplayBadRequest("window")
		}
		return window{from: from, to: to}, ""
	case ModeIngestion:
		if strings.TrimSpace(req.ObjectKeyOrIngestionID) == "" {
			return window{}, models.ReplayBadRequest("objectKeyOrIngestionId")
		}
	case ModeDLQDomain, ModeDLQSystem:
		if strings.TrimSpace(req.DLQID) == "" {
			return window{}, models.ReplayBadRequest("dlqId")
		}
	default:
		return window{}, models.ReplayBadRequest("mode")
	}
	return window{}, ""
}

package pipeline

import (
	"strings"
	"time"

	"github.com/davemorin/meural-manager/geocode"
	"github.com/davemorin/meural-manager/model"
)

const takenAtLayout = "2006-01-02T15:04:05"

// Compose builds the display description: city, season and caption in that
// order, joined by " · ". With none of the three available it falls back to
// "Month Year" when a capture timestamp exists, and otherwise returns ""
// (meaning: do not touch the remote caption).
func Compose(meta model.PhotoMetadata, place *geocode.Place, caption *string) string {
	taken := takenTime(meta)

	var parts []string
	if place != nil && place.City != "" {
		parts = append(parts, place.City)
	}
	if taken != nil {
		parts = append(parts, season(taken.Month()))
	}
	if caption != nil && *caption != "" {
		parts = append(parts, *caption)
	}

	if len(parts) > 0 {
		return strings.Join(parts, " · ")
	}
	if taken != nil {
		return taken.Format("January 2006")
	}
	return ""
}

func takenTime(meta model.PhotoMetadata) *time.Time {
	if meta.TakenAt == nil {
		return nil
	}
	t, err := time.Parse(takenAtLayout, *meta.TakenAt)
	if err != nil {
		return nil
	}
	return &t
}

// season maps a month to its Northern-hemisphere season name.
func season(m time.Month) string {
	switch m {
	case time.March, time.April, time.May:
		return "Spring"
	case time.June, time.July, time.August:
		return "Summer"
	case time.September, time.October, time.November:
		return "Fall"
	default:
		return "Winter"
	}
}

// Package validation checks the textual formats the archiver accepts from
// configuration, the command line, the admin API and the camera listing.
package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/rpicam-archiver/rpicam-archiver-go/internal/models"
)

var (
	dateKeyRegex   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timeOfDayRegex = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
	assetPathRegex = regexp.MustCompile(`^media/.+\.mp4$`)
)

// ValidateDateKey checks that s is a real calendar date in YYYY-MM-DD form.
func ValidateDateKey(s string) error {
	if !dateKeyRegex.MatchString(s) {
		return fmt.Errorf("invalid date format: %q (want YYYY-MM-DD)", s)
	}
	if _, err := time.Parse(models.DateLayout, s); err != nil {
		return fmt.Errorf("invalid date: %q: %w", s, err)
	}
	return nil
}

// ParseTimeOfDay parses an HH:MM wall-clock time.
func ParseTimeOfDay(s string) (hour, minute int, err error) {
	m := timeOfDayRegex.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, fmt.Errorf("invalid time of day: %q (want HH:MM)", s)
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	if hour > 23 || minute > 59 {
		return 0, 0, fmt.Errorf("time of day out of range: %q", s)
	}
	return hour, minute, nil
}

// IsValidAssetPath reports whether p references a media-folder mp4 file.
func IsValidAssetPath(p string) bool {
	return assetPathRegex.MatchString(p)
}

package validation

import (
	"testing"
)

func TestValidateDateKey(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid date", "2025-08-12", false},
		{"leap day", "2024-02-29", false},
		{"not a leap year", "2025-02-29", true},
		{"month out of range", "2025-13-01", true},
		{"slashes", "2025/08/12", true},
		{"short year", "25-08-12", true},
		{"trailing text", "2025-08-12x", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDateKey(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateDateKey(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantHour   int
		wantMinute int
		wantErr    bool
	}{
		{"end of day", "23:59", 23, 59, false},
		{"midnight", "00:00", 0, 0, false},
		{"single digit hour", "7:05", 7, 5, false},
		{"hour out of range", "24:00", 0, 0, true},
		{"minute out of range", "12:60", 0, 0, true},
		{"seconds included", "12:00:00", 0, 0, true},
		{"garbage", "noon", 0, 0, true},
		{"empty", "", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, m, err := ParseTimeOfDay(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTimeOfDay(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if h != tt.wantHour || m != tt.wantMinute {
				t.Errorf("ParseTimeOfDay(%q) = %d:%d, want %d:%d", tt.input, h, m, tt.wantHour, tt.wantMinute)
			}
		})
	}
}

func TestIsValidAssetPath(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"media/video001.mp4", true},
		{"media/sub/video001.mp4", true},
		{"media/video001.jpg", false},
		{"media/video001.mp4.th.jpg", false},
		{"other/video001.mp4", false},
		{"media/", false},
		{"media/.mp4", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := IsValidAssetPath(tt.path); got != tt.want {
				t.Errorf("IsValidAssetPath(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

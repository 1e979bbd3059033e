package utils

import (
	"testing"
	"time"
)

func TestParseStringTime(t *testing.T) {
	tests := []struct {
		timeString string
		expected   time.Duration
	}{
		{"250ms", 250 * time.Millisecond},
		{"10s", 10 * time.Second},
		{"20M", 20 * time.Minute},
		{"48h", 48 * time.Hour},
		{"2d", 2 * time.Hour * 24},
		{"soon", 0},
		{"-5s", 0},
		{"", 0},
	}

	for _, test := range tests {
		result := ParseStringTime(test.timeString)
		if result != test.expected {
			t.Errorf("ParseStringTime(%s): expected %v, got %v", test.timeString, test.expected, result)
		}
	}
}

func TestMilliseconds(t *testing.T) {
	if got := Milliseconds(30000); got != 30*time.Second {
		t.Errorf("Milliseconds(30000) = %v", got)
	}
	if got := Milliseconds(-1); got != 0 {
		t.Errorf("Milliseconds(-1) = %v", got)
	}
}

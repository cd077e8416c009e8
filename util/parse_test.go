package util_test

import (
	"testing"
	"time"

	"github.com/downfa11-org/xstream/util"
)

func TestParseInt(t *testing.T) {
	tests := []struct {
		input    string
		fallback int
		want     int
	}{
		{"123", 0, 123},
		{"0", 99, 0},
		{"-5", 0, -5},
		{"abc", 42, 42},
		{"", 7, 7},
		{"   ", 8, 8},
	}

	for _, tt := range tests {
		got := util.ParseInt(tt.input, tt.fallback)
		if got != tt.want {
			t.Errorf("ParseInt(%q, %d) = %d; want %d", tt.input, tt.fallback, got, tt.want)
		}
	}
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		input    string
		fallback bool
		want     bool
	}{
		{"true", false, true},
		{"false", true, false},
		{"1", false, true},
		{"yes", false, false},
		{"", true, true},
	}

	for _, tt := range tests {
		got := util.ParseBool(tt.input, tt.fallback)
		if got != tt.want {
			t.Errorf("ParseBool(%q, %v) = %v; want %v", tt.input, tt.fallback, got, tt.want)
		}
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input    string
		fallback time.Duration
		want     time.Duration
	}{
		{"2s", 0, 2 * time.Second},
		{"1500", 0, 1500 * time.Millisecond},
		{"", time.Minute, time.Minute},
		{"soon", time.Second, time.Second},
	}

	for _, tt := range tests {
		if got := util.ParseDuration(tt.input, tt.fallback); got != tt.want {
			t.Errorf("ParseDuration(%q) = %v; want %v", tt.input, got, tt.want)
		}
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]util.LogLevel{
		"debug":   util.LogLevelDebug,
		"WARNING": util.LogLevelWarn,
		"error":   util.LogLevelError,
		"bogus":   util.LogLevelInfo,
	}
	for in, want := range cases {
		if got := util.ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %v; want %v", in, got, want)
		}
	}
}

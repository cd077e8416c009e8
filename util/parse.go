package util

import (
	"strconv"
	"strings"
	"time"
)

func ParseInt(str string, fallback int) int {
	if v, err := strconv.Atoi(str); err == nil {
		return v
	}
	return fallback
}

func ParseBool(str string, fallback bool) bool {
	if v, err := strconv.ParseBool(str); err == nil {
		return v
	}
	return fallback
}

// ParseDuration accepts Go duration strings ("2s") or a bare integer of milliseconds.
func ParseDuration(str string, fallback time.Duration) time.Duration {
	str = strings.TrimSpace(str)
	if str == "" {
		return fallback
	}
	if ms, err := strconv.ParseInt(str, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	if d, err := time.ParseDuration(str); err == nil {
		return d
	}
	return fallback
}

package domain

import (
	"fmt"
	"strings"
	"time"
)

// ReconnectMode selects how a stream reacts to connection failures.
type ReconnectMode string

const (
	ReconnectNone     ReconnectMode = "none"
	ReconnectInfinite ReconnectMode = "infinite"
	ReconnectLimited  ReconnectMode = "limited"
)

// ReconnectPolicy configures retries of a push connection.
type ReconnectPolicy struct {
	Mode         ReconnectMode
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// ParseReconnectMode parses a mode name.
func ParseReconnectMode(s string) (ReconnectMode, error) {
	switch m := ReconnectMode(strings.ToLower(strings.TrimSpace(s))); m {
	case ReconnectNone, ReconnectInfinite, ReconnectLimited:
		return m, nil
	case "":
		return ReconnectNone, nil
	}
	return "", fmt.Errorf("unknown reconnect mode %q", s)
}

// ShouldRetry reports whether another attempt is allowed after attempt failures.
func (p ReconnectPolicy) ShouldRetry(attempt int) bool {
	switch p.Mode {
	case ReconnectInfinite:
		return true
	case ReconnectLimited:
		return attempt <= p.MaxRetries
	}
	return false
}

// Delay returns the wait before retry number attempt (1-based).
// base overrides InitialDelay when positive.
func (p ReconnectPolicy) Delay(attempt int, base time.Duration) time.Duration {
	if base <= 0 {
		base = p.InitialDelay
	}
	if base <= 0 {
		base = time.Second
	}
	delay := time.Duration(attempt) * base
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

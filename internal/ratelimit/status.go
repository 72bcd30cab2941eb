package ratelimit

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// Status is a point-in-time view of a limiter.
type Status struct {
	Name         string
	MaxRequests  int
	Window       time.Duration
	CurrentCount int
	Remaining    int
	// ResetIn is the time until the oldest logged call leaves the window. Zero when the log is empty.
	ResetIn    time.Duration
	CanProceed bool
}

// ResetInSeconds returns ResetIn rounded to one decimal.
func (s Status) ResetInSeconds() float64 {
	return roundTenth(s.ResetIn.Seconds())
}

// statusView is the wire shape shared by JSON and YAML output.
type statusView struct {
	Name           string  `json:"name" yaml:"name"`
	MaxRequests    int     `json:"max_requests" yaml:"max_requests"`
	WindowSeconds  float64 `json:"window_seconds" yaml:"window_seconds"`
	CurrentCount   int     `json:"current_count" yaml:"current_count"`
	Remaining      int     `json:"remaining" yaml:"remaining"`
	ResetInSeconds float64 `json:"reset_in_seconds" yaml:"reset_in_seconds"`
	CanProceed     bool    `json:"can_proceed" yaml:"can_proceed"`
}

func (s Status) view() statusView {
	return statusView{
		Name:           s.Name,
		MaxRequests:    s.MaxRequests,
		WindowSeconds:  s.Window.Seconds(),
		CurrentCount:   s.CurrentCount,
		Remaining:      s.Remaining,
		ResetInSeconds: s.ResetInSeconds(),
		CanProceed:     s.CanProceed,
	}
}

// MarshalJSON implements json.Marshaler.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.view())
}

// UnmarshalJSON implements json.Unmarshaler for the MarshalJSON shape.
func (s *Status) UnmarshalJSON(data []byte) error {
	var v statusView
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = Status{
		Name:         v.Name,
		MaxRequests:  v.MaxRequests,
		Window:       time.Duration(v.WindowSeconds * float64(time.Second)),
		CurrentCount: v.CurrentCount,
		Remaining:    v.Remaining,
		ResetIn:      time.Duration(v.ResetInSeconds * float64(time.Second)),
		CanProceed:   v.CanProceed,
	}
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (s Status) MarshalYAML() (interface{}, error) {
	return s.view(), nil
}

// String renders the status block printed by the CLI.
func (s Status) String() string {
	return FormatStatus(s)
}

// FormatStatus renders a human-readable multi-line status.
func FormatStatus(s Status) string {
	var b strings.Builder
	b.WriteString("--- Rate Limiter Status ---\n")
	fmt.Fprintf(&b, "Current requests: %d/%d\n", s.CurrentCount, s.MaxRequests)
	fmt.Fprintf(&b, "Remaining requests: %d\n", s.Remaining)
	if s.ResetIn > 0 {
		fmt.Fprintf(&b, "Reset in: %.1f seconds\n", s.ResetInSeconds())
	} else {
		b.WriteString("Reset in: counter clear\n")
	}
	fmt.Fprintf(&b, "Can proceed: %s\n", yesNo(s.CanProceed))
	b.WriteString(strings.Repeat("-", 27))
	return b.String()
}

// FormatStatusLine renders the status on a single line, as used by the monitor loop.
func FormatStatusLine(s Status) string {
	return fmt.Sprintf("requests: %2d/%d | remaining: %2d | reset in: %.1fs | can proceed: %s",
		s.CurrentCount, s.MaxRequests, s.Remaining, s.ResetInSeconds(), yesNo(s.CanProceed))
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}

package ratelimit

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestFormatStatus(t *testing.T) {
	status := Status{
		MaxRequests:  15,
		Window:       time.Minute,
		CurrentCount: 3,
		Remaining:    12,
		ResetIn:      42*time.Second + 260*time.Millisecond,
		CanProceed:   true,
	}

	rendered := FormatStatus(status)
	require.Contains(t, rendered, "Current requests: 3/15")
	require.Contains(t, rendered, "Remaining requests: 12")
	require.Contains(t, rendered, "Reset in: 42.3 seconds")
	require.Contains(t, rendered, "Can proceed: yes")
	require.Equal(t, rendered, status.String())
}

func TestFormatStatusClearCounter(t *testing.T) {
	rendered := FormatStatus(Status{MaxRequests: 15, Remaining: 15, CanProceed: true})
	require.Contains(t, rendered, "Reset in: counter clear")

	full := FormatStatus(Status{MaxRequests: 2, CurrentCount: 2, ResetIn: time.Second})
	require.Contains(t, full, "Can proceed: no")
}

func TestFormatStatusLine(t *testing.T) {
	line := FormatStatusLine(Status{MaxRequests: 15, CurrentCount: 15, ResetIn: 1500 * time.Millisecond})
	require.Equal(t, "requests: 15/15 | remaining:  0 | reset in: 1.5s | can proceed: no", line)
}

func TestStatusMarshalJSON(t *testing.T) {
	status := Status{
		Name:         "gemini",
		MaxRequests:  15,
		Window:       time.Minute,
		CurrentCount: 15,
		ResetIn:      12340 * time.Millisecond,
	}

	data, err := json.Marshal(status)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, "gemini", decoded["name"])
	require.Equal(t, 60.0, decoded["window_seconds"])
	require.Equal(t, 15.0, decoded["current_count"])
	require.Equal(t, 0.0, decoded["remaining"])
	require.Equal(t, 12.3, decoded["reset_in_seconds"])
	require.Equal(t, false, decoded["can_proceed"])
}

func TestStatusMarshalYAML(t *testing.T) {
	data, err := yaml.Marshal(Status{MaxRequests: 10, Remaining: 10, Window: 30 * time.Second, CanProceed: true})
	require.NoError(t, err)
	require.Contains(t, string(data), "max_requests: 10")
	require.Contains(t, string(data), "window_seconds: 30")
	require.Contains(t, string(data), "can_proceed: true")
}

package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/surge-downloader/gridsync/internal/engine/types"
)

// =============================================================================
// Event names
// =============================================================================

func TestEventNames(t *testing.T) {
	cases := []struct {
		ev   Event
		want Name
	}{
		{TimestampLoadingMsg{}, TimestampLoading},
		{TimestampLoadedMsg{}, TimestampLoaded},
		{TimestampFailedMsg{}, TimestampFailed},
		{DownloadProgressMsg{}, DownloadProgress},
		{LayerRegisteredMsg{}, LayerRegistered},
		{LayerClearedMsg{}, LayerCleared},
	}

	for _, tc := range cases {
		t.Run(string(tc.want), func(t *testing.T) {
			if got := tc.ev.EventName(); got != tc.want {
				t.Errorf("EventName() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestMessageTypes_AreDistinct(t *testing.T) {
	messages := []Event{
		TimestampLoadingMsg{Layer: "a"},
		TimestampLoadedMsg{Layer: "a"},
		TimestampFailedMsg{Layer: "a"},
		DownloadProgressMsg{Layer: "a"},
		LayerRegisteredMsg{Layer: "a"},
		LayerClearedMsg{Layer: "a"},
	}

	typeNames := make(map[string]bool)
	for _, msg := range messages {
		typeName := fmt.Sprintf("%T", msg)
		if typeNames[typeName] {
			t.Errorf("Duplicate type: %s", typeName)
		}
		typeNames[typeName] = true
	}

	if len(typeNames) != len(messages) {
		t.Errorf("Expected %d distinct types, got %d", len(messages), len(typeNames))
	}
}

// =============================================================================
// TimestampFailedMsg JSON
// =============================================================================

func TestTimestampFailedMsg_JSONRoundTrip(t *testing.T) {
	step := types.TimeStep{
		Time:    time.Date(2025, 10, 28, 6, 0, 0, 0, time.UTC),
		Date:    "20251028",
		Cycle:   "06z",
		Sources: []string{"20251028_06z.bin"},
	}
	msg := TimestampFailedMsg{
		Layer:    "temp2m",
		Index:    3,
		Step:     step,
		Priority: types.PriorityHigh,
		Err:      errors.New("unexpected status code: 503"),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded TimestampFailedMsg
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if decoded.Layer != "temp2m" || decoded.Index != 3 {
		t.Errorf("Unexpected identity: %+v", decoded)
	}
	if decoded.Priority != types.PriorityHigh {
		t.Errorf("Priority = %v, want high", decoded.Priority)
	}
	if !decoded.Step.Time.Equal(step.Time) || decoded.Step.Cycle != "06z" {
		t.Errorf("Step not preserved: %+v", decoded.Step)
	}
	if decoded.Err == nil || decoded.Err.Error() != "unexpected status code: 503" {
		t.Errorf("Err = %v, want the original message", decoded.Err)
	}
}

func TestTimestampFailedMsg_NilError(t *testing.T) {
	data, err := json.Marshal(TimestampFailedMsg{Layer: "x"})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if _, ok := raw["Err"]; ok {
		t.Error("Nil error should be omitted")
	}

	var decoded TimestampFailedMsg
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded.Err != nil {
		t.Errorf("Expected nil Err, got %v", decoded.Err)
	}
}

func TestTimestampFailedMsg_NonStringError(t *testing.T) {
	var decoded TimestampFailedMsg
	if err := json.Unmarshal([]byte(`{"Layer":"x","Err":{"code":1}}`), &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded.Err == nil || decoded.Err.Error() != `{"code":1}` {
		t.Errorf("Err = %v, want raw payload", decoded.Err)
	}

	if err := json.Unmarshal([]byte(`{"Layer":"x","Err":null}`), &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded.Err != nil {
		t.Errorf("null Err should decode to nil, got %v", decoded.Err)
	}
}

func TestTimestampLoadedMsg_OmitsPayload(t *testing.T) {
	msg := TimestampLoadedMsg{
		Layer:   "temp2m",
		Payload: &types.Payload{Data: []byte{1, 2}},
		Bytes:   2,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if _, ok := raw["Payload"]; ok {
		t.Error("Payload must not be serialized")
	}
	if raw["Bytes"] != float64(2) {
		t.Errorf("Bytes = %v, want 2", raw["Bytes"])
	}
}

// =============================================================================
// Channel communication
// =============================================================================

func TestEvents_ChannelCommunication(t *testing.T) {
	ch := make(chan Event, 2)
	ch <- TimestampLoadingMsg{Layer: "a", Index: 1}
	ch <- DownloadProgressMsg{Layer: "a", Progress: types.Progress{Total: 5, Loaded: 1}}

	first := <-ch
	if m, ok := first.(TimestampLoadingMsg); !ok || m.Index != 1 {
		t.Errorf("Unexpected first event: %#v", first)
	}

	second := <-ch
	m, ok := second.(DownloadProgressMsg)
	if !ok {
		t.Fatalf("Expected DownloadProgressMsg, got %T", second)
	}
	if m.Progress.Total != 5 || m.Progress.Loaded != 1 {
		t.Errorf("Progress not preserved: %+v", m.Progress)
	}
}

package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestPriority_Ordering(t *testing.T) {
	if !(PriorityCritical > PriorityHigh && PriorityHigh > PriorityBackground) {
		t.Fatal("priorities must be ordered critical > high > background")
	}
	if PriorityBackground.IsUrgent() {
		t.Error("background must not be urgent")
	}
	if !PriorityHigh.IsUrgent() || !PriorityCritical.IsUrgent() {
		t.Error("high and critical must be urgent")
	}
}

func TestParsePriority(t *testing.T) {
	for _, p := range []Priority{PriorityBackground, PriorityHigh, PriorityCritical} {
		got, err := ParsePriority(p.String())
		if err != nil || got != p {
			t.Errorf("ParsePriority(%q) = %v, %v", p.String(), got, err)
		}
	}
	if _, err := ParsePriority("urgent"); err == nil {
		t.Error("expected error for unknown priority")
	}
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in      string
		want    Strategy
		wantErr bool
	}{
		{"on-demand", StrategyOnDemand, false},
		{"Aggressive", StrategyAggressive, false},
		{" aggressive ", StrategyAggressive, false},
		{"eager", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStrategy(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPayload_Size(t *testing.T) {
	var nilPayload *Payload
	if nilPayload.Size() != 0 {
		t.Error("nil payload must have size 0")
	}
	single := &Payload{Kind: PayloadSingle, Data: make([]byte, 10)}
	if single.Size() != 10 {
		t.Errorf("single size = %d", single.Size())
	}
	pair := &Payload{Kind: PayloadPair, U: make([]byte, 4), V: make([]byte, 6)}
	if pair.Size() != 10 {
		t.Errorf("pair size = %d", pair.Size())
	}
}

func TestErrors_Classification(t *testing.T) {
	if !errors.Is(ErrIndexOutOfRange, ErrNotRegistered) {
		t.Error("ErrIndexOutOfRange must wrap ErrNotRegistered")
	}

	netErr := fmt.Errorf("load: %w", &NetworkError{URL: "http://x", StatusCode: 404})
	if !IsNetworkError(netErr) || IsFormatError(netErr) {
		t.Error("wrapped NetworkError misclassified")
	}

	fmtErr := fmt.Errorf("load: %w", &FormatError{URL: "http://x", Reason: "odd length"})
	if !IsFormatError(fmtErr) || IsNetworkError(fmtErr) {
		t.Error("wrapped FormatError misclassified")
	}
}

func TestNetworkError_Temporary(t *testing.T) {
	tests := []struct {
		code int
		want bool
	}{
		{0, true},
		{404, false},
		{403, false},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tt := range tests {
		e := &NetworkError{URL: "u", StatusCode: tt.code, Err: errors.New("x")}
		if got := e.Temporary(); got != tt.want {
			t.Errorf("status %d: Temporary() = %v, want %v", tt.code, got, tt.want)
		}
	}
}

package types

import (
	"testing"
	"time"
)

func TestSessionRecord_Validate(t *testing.T) {
	valid := SessionRecord{SessionID: "s", Outcome: OutcomeReady, Timestamp: time.Now()}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid record rejected: %v", err)
	}

	for name, rec := range map[string]SessionRecord{
		"no id":        {Outcome: OutcomeReady, Timestamp: time.Now()},
		"no outcome":   {SessionID: "s", Timestamp: time.Now()},
		"no timestamp": {SessionID: "s", Outcome: OutcomeFailed},
	} {
		if err := rec.Validate(); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestRedactURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://cdn.example/v/a.c3u8?token=secret", "https://cdn.example/v/a.c3u8"},
		{"https://user:pw@cdn.example/a.m3u8#t=10", "https://cdn.example/a.m3u8"},
		{"memory://playlist.m3u8", "memory://playlist.m3u8"},
		{"://bad", "<invalid>"},
	}
	for _, tt := range tests {
		if got := RedactURL(tt.in); got != tt.want {
			t.Errorf("RedactURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

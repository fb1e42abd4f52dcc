package model

import (
	"testing"
	"time"
)

func TestBanInEffect(t *testing.T) {
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	past, future := now.Add(-time.Second), now.Add(time.Second)
	tests := []struct {
		name string
		ban  Ban
		want bool
	}{
		{"open ended", Ban{Active: true}, true},
		{"not yet expired", Ban{Active: true, Until: &future}, true},
		{"expired", Ban{Active: true, Until: &past}, false},
		{"expires now", Ban{Active: true, Until: &now}, false},
		{"lifted", Ban{Active: false}, false},
	}
	for _, tt := range tests {
		if got := tt.ban.InEffect(now); got != tt.want {
			t.Errorf("%s: InEffect = %v, want %v", tt.name, got, tt.want)
		}
	}
}

package util

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestGenerateRandomID(t *testing.T) {
	tests := []struct {
		name       string
		prefix     string
		hexLength  int
		wantLength int
	}{
		{"admin message id", "am_", 24, 27},
		{"custom prefix", "test_", 16, 21},
		{"empty hex", "x_", 0, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GenerateRandomID(tt.prefix, tt.hexLength)
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("GenerateRandomID() = %v, want prefix %v", got, tt.prefix)
			}
			if len(got) != tt.wantLength {
				t.Errorf("GenerateRandomID() length = %v, want %v", len(got), tt.wantLength)
			}
			if !isValidHex(got[len(tt.prefix):]) {
				t.Errorf("GenerateRandomID() hex part of %v is not valid hex", got)
			}
		})
	}
}

func TestGenerateRandomHex(t *testing.T) {
	for _, n := range []int{-1, 0, 8, 64} {
		got := GenerateRandomHex(n)
		want := n
		if want < 0 {
			want = 0
		}
		if len(got) != want || !isValidHex(got) {
			t.Errorf("GenerateRandomHex(%d) = %q", n, got)
		}
	}
}

func TestGenerateSessionIDIsUUID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := GenerateSessionID()
		if _, err := uuid.Parse(id); err != nil {
			t.Fatalf("GenerateSessionID() = %q is not a UUID: %v", id, err)
		}
		if seen[id] {
			t.Fatalf("duplicate session id %q", id)
		}
		seen[id] = true
	}
}

func TestGenerateAdminMessageID(t *testing.T) {
	id := GenerateAdminMessageID()
	if !strings.HasPrefix(id, "am_") || len(id) != 27 {
		t.Errorf("GenerateAdminMessageID() = %q", id)
	}
}

func isValidHex(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}

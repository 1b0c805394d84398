package util

import "testing"

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		val  string
		def  bool
		want bool
	}{
		{"", true, true},
		{"yes", false, true},
		{"ON", false, true},
		{"0", true, false},
		{"maybe", true, true},
	}
	for _, tt := range tests {
		t.Setenv("OVNCHAT_TEST_BOOL", tt.val)
		if got := ParseBoolEnv("OVNCHAT_TEST_BOOL", tt.def); got != tt.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.val, tt.def, got, tt.want)
		}
	}
}

func TestParseIntEnv(t *testing.T) {
	tests := []struct {
		val  string
		want int
	}{
		{"", 30},
		{"45", 45},
		{"-2", 30},
		{"abc", 30},
	}
	for _, tt := range tests {
		t.Setenv("OVNCHAT_TEST_INT", tt.val)
		if got := ParseIntEnv("OVNCHAT_TEST_INT", 30); got != tt.want {
			t.Errorf("ParseIntEnv(%q) = %d, want %d", tt.val, got, tt.want)
		}
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("OVNCHAT_TEST_A", "")
	t.Setenv("OVNCHAT_TEST_B", "b")
	if got := GetEnv("def", "OVNCHAT_TEST_A", "OVNCHAT_TEST_B"); got != "b" {
		t.Errorf("GetEnv = %q, want b", got)
	}
	if got := GetEnv("def", "OVNCHAT_TEST_A"); got != "def" {
		t.Errorf("GetEnv = %q, want def", got)
	}
}

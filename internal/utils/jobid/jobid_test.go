package jobid

import (
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := New()
		if !strings.HasPrefix(id, "job_") {
			t.Fatalf("id %q missing job_ prefix", id)
		}
		if !IsValid(id) {
			t.Fatalf("generated id %q not valid", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{New(), true},
		{"", false},
		{"job_", false},
		{"job_notaulid", false},
		{"med_01hgw2bbg40000000000000000", false},
	}
	for _, tt := range tests {
		if got := IsValid(tt.value); got != tt.want {
			t.Errorf("IsValid(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

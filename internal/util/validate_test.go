package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		email string
		want  bool
	}{
		{"alice@x.com", true},
		{"first.last+tag@uni.example.edu", true},
		{"", false},
		{"alice", false},
		{"alice@", false},
		{"@x.com", false},
		{"alice@x", false},
		{"alice@@x.com", false},
		{"alice @x.com", false},
		{strings.Repeat("a", 250) + "@x.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidateEmail(tt.email))
		})
	}
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "alice@x.com", NormalizeEmail("  Alice@X.com\n"))
	assert.Equal(t, "", NormalizeEmail("   "))
}

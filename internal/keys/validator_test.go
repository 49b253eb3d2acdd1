package keys

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want bool
	}{
		{"valid key", strings.Repeat("A", 43) + "=", true},
		{"valid mixed alphabet", "aB3+/cD9eF0gH1iJ2kL3mN4oP5qR6sT7uV8wX9yZ0ab=", true},
		{"empty", "", false},
		{"too short", strings.Repeat("A", 42) + "=", false},
		{"too long", strings.Repeat("A", 44) + "=", false},
		{"no trailing equals", strings.Repeat("A", 44), false},
		{"equals in the middle", strings.Repeat("A", 21) + "=" + strings.Repeat("A", 21) + "=", false},
		{"illegal character", strings.Repeat("A", 42) + "!=", false},
		{"whitespace", strings.Repeat("A", 42) + " =", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValid(tt.key))
		})
	}
}

func TestIsValidAcceptsGeneratedKeys(t *testing.T) {
	kp, err := curveStrategy{}.generate(true)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	assert.True(t, IsValid(kp.PrivateKey))
	assert.True(t, IsValid(kp.PublicKey))
	assert.True(t, IsValid(kp.PresharedKey))
}

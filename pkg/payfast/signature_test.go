package payfast

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignKnownVectors(t *testing.T) {
	tests := []struct {
		name       string
		fields     map[string]string
		passphrase string
		want       string
	}{
		{
			name: "header fields",
			fields: map[string]string{
				"merchant-id": "10000100",
				"version":     "v1",
				"timestamp":   "2024-03-01T10:15:30+02:00",
			},
			passphrase: "salt and pepper",
			want:       "94a88cd422065979016d530975e0c68f",
		},
		{
			name:       "empty field map signs the passphrase alone",
			fields:     map[string]string{},
			passphrase: "secret",
			want:       "d37e317eed76a9048bc0601f8d7c0188",
		},
		{
			name: "body fields with reserved characters in passphrase",
			fields: map[string]string{
				"amount":    "4900",
				"frequency": "3",
			},
			passphrase: "s3cret!",
			want:       "280f2ee523d22a238f8f4ecb3901fa9f",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sign(tt.fields, tt.passphrase))
		})
	}
}

func TestSignDeterministic(t *testing.T) {
	// Build the same logical field set in two different insertion orders;
	// the canonical sort must make the result identical.
	a := map[string]string{}
	a["merchant-id"] = "10000100"
	a["timestamp"] = "2024-03-01T10:15:30+02:00"
	a["version"] = "v1"
	a["amount"] = "9900"

	b := map[string]string{}
	b["amount"] = "9900"
	b["version"] = "v1"
	b["timestamp"] = "2024-03-01T10:15:30+02:00"
	b["merchant-id"] = "10000100"

	for i := 0; i < 50; i++ {
		assert.Equal(t, Sign(a, "pass"), Sign(b, "pass"))
	}
}

func TestSignSensitivity(t *testing.T) {
	base := map[string]string{
		"merchant-id": "10000100",
		"version":     "v1",
		"amount":      "9900",
	}
	ref := Sign(base, "pass")

	t.Run("changed value", func(t *testing.T) {
		m := map[string]string{"merchant-id": "10000100", "version": "v1", "amount": "9901"}
		assert.NotEqual(t, ref, Sign(m, "pass"))
	})

	t.Run("removed field", func(t *testing.T) {
		m := map[string]string{"merchant-id": "10000100", "version": "v1"}
		assert.NotEqual(t, ref, Sign(m, "pass"))
	})

	t.Run("added field", func(t *testing.T) {
		m := map[string]string{"merchant-id": "10000100", "version": "v1", "amount": "9900", "cycles": "2"}
		assert.NotEqual(t, ref, Sign(m, "pass"))
	})

	t.Run("changed passphrase", func(t *testing.T) {
		assert.NotEqual(t, ref, Sign(base, "other"))
	})
}

func TestSignFormat(t *testing.T) {
	format := regexp.MustCompile(`^[a-f0-9]{32}$`)

	assert.Regexp(t, format, Sign(nil, ""))
	assert.Regexp(t, format, Sign(map[string]string{"a": "b"}, "p"))
	assert.Regexp(t, format, Sign(map[string]string{"spaced key": "value with spaces"}, "pass phrase"))
}

package watches

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeQuery(t *testing.T) {
	tests := map[string]string{
		"laptop":              "laptop",
		"  Gaming   LAPTOP  ": "gaming laptop",
		"rtx\t4090\nti":       "rtx 4090 ti",
		"   ":                 "",
		"Ekspres DO kawy":     "ekspres do kawy",
	}

	for in, want := range tests {
		assert.Equal(t, want, NormalizeQuery(in), "%q", in)
	}
}

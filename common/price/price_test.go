package price

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want float64
	}{
		{name: "comma decimal with currency", in: "29,99 zł", want: 29.99},
		{name: "integer with currency", in: "1999 zł", want: 1999},
		{name: "thousands separated by space", in: "1 299,50 zł", want: 1299.5},
		{name: "non-breaking space", in: "15,00\u00a0zł", want: 15},
		{name: "upper case currency", in: "10,50 ZŁ", want: 10.5},
		{name: "dot decimal", in: "4.20", want: 4.2},
		{name: "polish free", in: "Darmowa", want: 0},
		{name: "english free", in: "FREE", want: 0},
		{name: "free with digits", in: "0 zł darmowe 12", want: 0},
		{name: "bezpłatnie", in: "Bezpłatnie", want: 0},
		{name: "garbage", in: "garbage", want: 0},
		{name: "empty", in: "", want: 0},
		{name: "nan is garbled", in: "NaN", want: 0},
		{name: "inf is garbled", in: "inf", want: 0},
		{name: "european thousands is garbled", in: "1.999,99 zł", want: 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, Parse(tc.in), 1e-9)
		})
	}
}

func TestNormalizeAbsent(t *testing.T) {
	assert.Equal(t, 0.0, Normalize(nil))

	raw := "29,99 zł"
	assert.InDelta(t, 29.99, Normalize(&raw), 1e-9)
}

package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePeriod(t *testing.T) {
	t.Parallel()

	p, err := ParsePeriod("06/2025")
	require.NoError(t, err)
	assert.Equal(t, Period{Month: 6, Year: 2025}, p)
	assert.Equal(t, "06/2025", p.String())
	assert.Equal(t, 202506, p.Key())

	p, err = ParsePeriod(" 1/2024 ")
	require.NoError(t, err)
	assert.Equal(t, "01/2024", p.String())
}

func TestParsePeriod_Invalid(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "2025-06", "13/2025", "00/2025", "ab/2025", "06/x"} {
		_, err := ParsePeriod(in)
		assert.Error(t, err, in)
	}
}

func TestPeriod_Navigation(t *testing.T) {
	t.Parallel()

	jan := Period{Month: 1, Year: 2025}
	assert.Equal(t, Period{Month: 12, Year: 2024}, jan.Prev())
	assert.True(t, jan.Prev().Before(jan))
	assert.False(t, jan.Before(jan))

	feb := Period{Month: 2, Year: 2024}
	assert.Equal(t, 29, feb.LastDay().Day())
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), feb.Day(31))
	assert.Equal(t, 15, feb.Day(15).Day())
}

func TestPeriod_Text(t *testing.T) {
	t.Parallel()

	var p Period
	require.NoError(t, p.UnmarshalText([]byte("12/2024")))
	b, err := p.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "12/2024", string(b))
}

package timecode

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tc, err := Parse("IDR043.T.201801311254.png")
	require.NoError(t, err)
	assert.Equal(t, Timecode{Year: 2018, Month: 1, Day: 31, Hour: 12, Minute: 54}, tc)
	assert.Equal(t, "201801311254", tc.String())
}

func TestParse_LongerSegment(t *testing.T) {
	tc, err := Parse("IDR043.T.20180131125400.png")
	require.NoError(t, err)
	assert.Equal(t, 54, tc.Minute)
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"no segments", "IDR043"},
		{"missing stamp", "IDR043.T"},
		{"short stamp", "IDR043.T.2018013112.png"},
		{"non numeric", "IDR043.T.2018O1311254.png"},
		{"signed", "IDR043.T.+01801311254.png"},
		{"reference image", "IDR043.background.png"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformed))
		})
	}
}

func TestMustParse_Panics(t *testing.T) {
	assert.Panics(t, func() { MustParse("nope") })
}

func TestConsecutive(t *testing.T) {
	tests := []struct {
		name string
		prev string
		next string
		want bool
	}{
		{"ordinary cadence", "201801011200", "201801011206", true},
		{"hour rollover", "201801011254", "201801011300", true},
		{"hour rollover late first frame", "201801011258", "201801011304", true},
		{"day rollover", "201801012354", "201801020000", true},
		{"month rollover uses day zero", "201801312354", "201802000000", true},
		{"year rollover uses month zero", "201712312354", "201800000000", true},
		{"thirty minute gap", "201801011200", "201801011230", false},
		{"twelve minute gap", "201801011200", "201801011212", false},
		{"same frame", "201801011200", "201801011200", false},
		{"real month rollover is a gap", "201801312354", "201802010000", false},
		{"hour skipped", "201801011254", "201801011400", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev := MustParse("IDR043.T." + tt.prev + ".png")
			next := MustParse("IDR043.T." + tt.next + ".png")
			assert.Equal(t, tt.want, Consecutive(prev, next))
		})
	}
}

func TestTime(t *testing.T) {
	tc := Timecode{Year: 2018, Month: 3, Day: 4, Hour: 5, Minute: 6}
	assert.Equal(t, time.Date(2018, time.March, 4, 5, 6, 0, 0, time.UTC), tc.Time())
}

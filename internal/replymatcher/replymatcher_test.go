package replymatcher

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestNormalizeSubject(t *testing.T) {
	cases := map[string]string{
		"Quick check-in":             "quick check-in",
		"Re: Quick check-in":         "quick check-in",
		"RE: Quick check-in":         "quick check-in",
		"re: re: Quick check-in":     "quick check-in",
		"  Re:   Quick check-in":     "quick check-in",
		"Re:Re: Following up":        "following up",
		"No prefix here":             "no prefix here",
	}
	for in, want := range cases {
		assert.Equal(t, want, normalizeSubject(in), "input %q", in)
	}
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(gorm.ErrRecordNotFound))
	assert.False(t, isNotFound(errors.New("connection refused")))
}

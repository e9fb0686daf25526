package apperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewAndIs(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := New("dispatcher.send", KindTransientNetwork, cause)

	assert.True(t, Is(err, KindTransientNetwork))
	assert.False(t, Is(err, KindNeedsReauth))
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestErrorMessage(t *testing.T) {
	t.Run("with cause", func(t *testing.T) {
		err := New("store.mark", KindDuplicateDispatch, errors.New("zero rows affected"))
		assert.Equal(t, "store.mark: duplicate_dispatch: zero rows affected", err.Error())
	})

	t.Run("without cause", func(t *testing.T) {
		err := New("mailclient.generate", KindContentGeneratorEmpty, nil)
		assert.Equal(t, "mailclient.generate: content_generator_empty", err.Error())
	})
}

func TestKindOf(t *testing.T) {
	t.Run("typed error", func(t *testing.T) {
		err := New("dispatcher.pick_recipient", KindInvalidPlan, errors.New("no recipients"))
		assert.Equal(t, KindInvalidPlan, KindOf(err))
	})

	t.Run("unclassified error defaults to transient", func(t *testing.T) {
		assert.Equal(t, KindTransientNetwork, KindOf(errors.New("some plain error")))
	})

	t.Run("nil error defaults to transient", func(t *testing.T) {
		assert.Equal(t, KindTransientNetwork, KindOf(nil))
	})
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindTransientNetwork:      "transient_network",
		KindExpiredToken:          "expired_token",
		KindNeedsReauth:           "needs_reauth",
		KindInvalidPlan:           "invalid_plan",
		KindDuplicateDispatch:     "duplicate_dispatch",
		KindContentGeneratorEmpty: "content_generator_empty",
		KindUnknownProvider:       "unknown_provider",
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.String())
	}
	assert.Equal(t, "unknown", Kind(999).String())
}

func TestWrappedErrorSurvivesErrorsIs(t *testing.T) {
	cause := errors.New("credential refresh failed")
	err := New("dispatcher.refresh", KindNeedsReauth, cause)
	assert.True(t, errors.Is(err, cause))
}

package mailclient

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/oauth2"

	"mailnexy/internal/apperr"
)

func TestClassifySMTPError(t *testing.T) {
	cases := []struct {
		msg  string
		want apperr.Kind
	}{
		{"535 authentication failed", apperr.KindNeedsReauth},
		{"invalid credentials for user", apperr.KindNeedsReauth},
		{"535-5.7.8 bad auth", apperr.KindNeedsReauth},
		{"dial tcp: connection refused", apperr.KindTransientNetwork},
		{"i/o timeout", apperr.KindTransientNetwork},
	}
	for _, tt := range cases {
		assert.Equal(t, tt.want, classifySMTPError(errors.New(tt.msg)), "msg %q", tt.msg)
	}
}

func TestClassifyIMAPAuthError(t *testing.T) {
	cases := []struct {
		msg  string
		want apperr.Kind
	}{
		{"invalid credentials (Failure)", apperr.KindNeedsReauth},
		{"AUTHENTICATIONFAILED", apperr.KindNeedsReauth},
		{"connection reset by peer", apperr.KindTransientNetwork},
	}
	for _, tt := range cases {
		assert.Equal(t, tt.want, classifyIMAPAuthError(errors.New(tt.msg)), "msg %q", tt.msg)
	}
}

func TestClassifyOAuthError(t *testing.T) {
	t.Run("nil error defaults to transient", func(t *testing.T) {
		assert.Equal(t, apperr.KindTransientNetwork, classifyOAuthError(nil))
	})
	t.Run("invalid_grant needs reauth", func(t *testing.T) {
		err := &oauth2.RetrieveError{ErrorCode: "invalid_grant"}
		assert.Equal(t, apperr.KindNeedsReauth, classifyOAuthError(err))
	})
	t.Run("unauthorized_client needs reauth", func(t *testing.T) {
		err := &oauth2.RetrieveError{ErrorCode: "unauthorized_client"}
		assert.Equal(t, apperr.KindNeedsReauth, classifyOAuthError(err))
	})
	t.Run("other retrieve errors are treated as expired token", func(t *testing.T) {
		err := &oauth2.RetrieveError{ErrorCode: "server_error"}
		assert.Equal(t, apperr.KindExpiredToken, classifyOAuthError(err))
	})
	t.Run("non-retrieve errors are treated as expired token", func(t *testing.T) {
		assert.Equal(t, apperr.KindExpiredToken, classifyOAuthError(errors.New("plain error")))
	})
}

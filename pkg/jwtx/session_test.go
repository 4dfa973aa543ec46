package jwtx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSessionSignerRoundTrip(t *testing.T) {
	s := NewSessionSigner("secret-a", "ecobalance")

	token, err := s.Sign("01HQ7T3Z1MZ0JQ3M6MZQ1FQ3ZV", time.Now().Add(time.Hour))
	require.NoError(t, err)

	sid, err := s.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "01HQ7T3Z1MZ0JQ3M6MZQ1FQ3ZV", sid)
}

func TestSessionSignerRejects(t *testing.T) {
	s := NewSessionSigner("secret-a", "ecobalance")
	token, err := s.Sign("sid-1", time.Now().Add(time.Hour))
	require.NoError(t, err)

	t.Run("foreign secret", func(t *testing.T) {
		_, err := NewSessionSigner("secret-b", "ecobalance").Verify(token)
		require.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("foreign issuer", func(t *testing.T) {
		_, err := NewSessionSigner("secret-a", "someone-else").Verify(token)
		require.ErrorIs(t, err, ErrIssuer)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := s.Verify("not.a.jwt")
		require.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("expired", func(t *testing.T) {
		expired, err := s.Sign("sid-1", time.Now().Add(-time.Minute))
		require.NoError(t, err)

		_, err = s.Verify(expired)
		require.ErrorIs(t, err, ErrExpired)
	})

	t.Run("missing sid", func(t *testing.T) {
		empty, err := s.Sign("", time.Now().Add(time.Hour))
		require.NoError(t, err)

		_, err = s.Verify(empty)
		require.ErrorIs(t, err, ErrMalformed)
	})
}

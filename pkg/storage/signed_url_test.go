package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignedURLSignerRoundtrip(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, expiresAt, err := signer.Generate("sched-1", "sched-1/sched-1_20250101_080000.csv")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.True(t, expiresAt.After(time.Now()))

	scheduleID, path, parsedExpiry, err := signer.Parse(token, false)
	require.NoError(t, err)
	require.Equal(t, "sched-1", scheduleID)
	require.Equal(t, "sched-1/sched-1_20250101_080000.csv", path)
	require.WithinDuration(t, expiresAt, parsedExpiry, time.Second)
}

func TestSignedURLSignerRejectsTampering(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, _, err := signer.Generate("sched-1", "sched-1/file.csv")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	parts[0] = "sched-2"
	_, _, _, err = signer.Parse(strings.Join(parts, "."), false)
	require.ErrorContains(t, err, "signature")

	_, _, _, err = signer.Parse("not-a-token", false)
	require.ErrorContains(t, err, "malformed")
}

func TestSignedURLSignerExpiry(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Millisecond*10)
	token, _, err := signer.Generate("sched-1", "sched-1/file.csv")
	require.NoError(t, err)
	time.Sleep(time.Millisecond * 20)

	_, _, _, err = signer.Parse(token, false)
	require.ErrorContains(t, err, "expired")

	scheduleID, path, _, err := signer.Parse(token, true)
	require.NoError(t, err)
	require.Equal(t, "sched-1", scheduleID)
	require.Equal(t, "sched-1/file.csv", path)
}

func TestSignedURLSignerRequiresConfig(t *testing.T) {
	signer := NewSignedURLSigner("", time.Hour)
	_, _, err := signer.Generate("sched-1", "sched-1/file.csv")
	require.ErrorContains(t, err, "secret")

	signer = NewSignedURLSigner("secret", time.Hour)
	_, _, err = signer.Generate("", "sched-1/file.csv")
	require.Error(t, err)
}

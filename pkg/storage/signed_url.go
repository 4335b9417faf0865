package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const tokenSep = "."

// SignedURLSigner mints and validates download tokens for stored
// timetable exports. A token binds the schedule ID, the artifact path
// and an expiry under an HMAC, so a download link can be handed out
// without exposing the filesystem layout.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
}

// NewSignedURLSigner constructs a signer with the provided secret and TTL.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SignedURLSigner{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// Generate returns a signed token referencing the schedule and artifact path.
func (s *SignedURLSigner) Generate(scheduleID, relPath string) (string, time.Time, error) {
	if scheduleID == "" || relPath == "" {
		return "", time.Time{}, fmt.Errorf("schedule ID and artifact path required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := time.Now().Add(s.ttl)
	encodedPath := base64.RawURLEncoding.EncodeToString([]byte(relPath))
	signature := s.sign(scheduleID, strconv.FormatInt(expiresAt.Unix(), 10), encodedPath)
	token := strings.Join([]string{
		scheduleID,
		strconv.FormatInt(expiresAt.Unix(), 10),
		encodedPath,
		signature,
	}, tokenSep)
	return token, expiresAt, nil
}

// Parse validates a token and returns the embedded metadata. With
// allowExpired the timestamp check is skipped, which cleanup routines
// use to resolve paths of already expired artifacts.
func (s *SignedURLSigner) Parse(token string, allowExpired bool) (scheduleID, relPath string, expiresAt time.Time, err error) {
	parts := strings.Split(token, tokenSep)
	if len(parts) != 4 {
		return "", "", time.Time{}, fmt.Errorf("malformed download token")
	}
	scheduleID, ts, encodedPath, signature := parts[0], parts[1], parts[2], parts[3]

	rawPath, err := base64.RawURLEncoding.DecodeString(encodedPath)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("decode artifact path: %w", err)
	}
	expUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("malformed token timestamp")
	}
	expiresAt = time.Unix(expUnix, 0)

	expected := s.sign(scheduleID, ts, encodedPath)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return "", "", time.Time{}, fmt.Errorf("invalid token signature")
	}
	if !allowExpired && time.Now().After(expiresAt) {
		return "", "", time.Time{}, fmt.Errorf("download token expired")
	}
	return scheduleID, string(rawPath), expiresAt, nil
}

func (s *SignedURLSigner) sign(scheduleID, ts, encodedPath string) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s|%s|%s", scheduleID, ts, encodedPath)
	return hex.EncodeToString(mac.Sum(nil))
}

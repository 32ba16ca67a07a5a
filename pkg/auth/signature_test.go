package auth

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

const testSecret = "relay-test-secret"

func newTestVerifier(t *testing.T, now time.Time) *Verifier {
	t.Helper()

	v, err := NewVerifier(testSecret, WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewVerifier failed: %v", err)
	}
	return v
}

func TestParseSignatureHeader(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		wantTS     int64
		wantSigs   int
		wantErr    bool
	}{
		{
			name:     "valid header",
			header:   "t=1717243800,v1=abc123",
			wantTS:   1717243800,
			wantSigs: 1,
		},
		{
			name:     "multiple signatures",
			header:   "t=1717243800,v1=abc123,v1=def456",
			wantTS:   1717243800,
			wantSigs: 2,
		},
		{
			name:     "unknown keys ignored",
			header:   "t=1717243800,v0=old,v1=abc123,extra=1",
			wantTS:   1717243800,
			wantSigs: 1,
		},
		{
			name:     "malformed pairs ignored",
			header:   "garbage,t=1717243800,v1=abc123",
			wantTS:   1717243800,
			wantSigs: 1,
		},
		{
			name:    "empty header",
			header:  "",
			wantErr: true,
		},
		{
			name:    "missing timestamp",
			header:  "v1=abc123",
			wantErr: true,
		},
		{
			name:    "non-numeric timestamp",
			header:  "t=soon,v1=abc123",
			wantErr: true,
		},
		{
			name:    "missing signature",
			header:  "t=1717243800",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signed, err := ParseSignatureHeader(tt.header)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedHeader) {
					t.Errorf("expected ErrMalformedHeader, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if signed.Timestamp != tt.wantTS {
				t.Errorf("expected timestamp %d, got %d", tt.wantTS, signed.Timestamp)
			}
			if len(signed.Signatures) != tt.wantSigs {
				t.Errorf("expected %d signatures, got %d", tt.wantSigs, len(signed.Signatures))
			}
		})
	}
}

func TestVerify_ValidSignature(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	v := newTestVerifier(t, now)

	body := []byte(`{"action":"system.ping","params":{}}`)
	header := fmt.Sprintf("t=%d,v1=%s", now.Unix(), v.Sign(now.Unix(), body))

	if err := v.Verify(header, body); err != nil {
		t.Errorf("expected valid signature, got %v", err)
	}
}

func TestVerify_RotatedSecretSecondDigest(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	v := newTestVerifier(t, now)

	body := []byte(`{"action":"system.ping"}`)
	header := fmt.Sprintf("t=%d,v1=%s,v1=%s",
		now.Unix(), "0000deadbeef", v.Sign(now.Unix(), body))

	if err := v.Verify(header, body); err != nil {
		t.Errorf("expected the matching second digest to pass, got %v", err)
	}
}

func TestVerify_TamperedBody(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	v := newTestVerifier(t, now)

	body := []byte(`{"action":"system.ping"}`)
	header := fmt.Sprintf("t=%d,v1=%s", now.Unix(), v.Sign(now.Unix(), body))

	err := v.Verify(header, []byte(`{"action":"workflow.execute"}`))
	if !errors.Is(err, ErrSignatureMismatch) {
		t.Errorf("expected ErrSignatureMismatch, got %v", err)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	v := newTestVerifier(t, now)

	other, err := NewVerifier("a-different-secret")
	if err != nil {
		t.Fatalf("NewVerifier failed: %v", err)
	}

	body := []byte(`{"action":"system.ping"}`)
	header := fmt.Sprintf("t=%d,v1=%s", now.Unix(), other.Sign(now.Unix(), body))

	if err := v.Verify(header, body); !errors.Is(err, ErrSignatureMismatch) {
		t.Errorf("expected ErrSignatureMismatch, got %v", err)
	}
}

func TestVerify_ReplayRejected(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	v := newTestVerifier(t, now)

	// A correctly signed request from 600s ago must be rejected even
	// though its digest matches.
	stale := now.Add(-600 * time.Second).Unix()
	body := []byte(`{"action":"system.ping"}`)
	header := fmt.Sprintf("t=%d,v1=%s", stale, v.Sign(stale, body))

	err := v.Verify(header, body)
	if !errors.Is(err, ErrReplayWindowExceeded) {
		t.Errorf("expected ErrReplayWindowExceeded, got %v", err)
	}
}

func TestVerify_FutureTimestampRejected(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	v := newTestVerifier(t, now)

	future := now.Add(600 * time.Second).Unix()
	body := []byte(`{"action":"system.ping"}`)
	header := fmt.Sprintf("t=%d,v1=%s", future, v.Sign(future, body))

	if err := v.Verify(header, body); !errors.Is(err, ErrReplayWindowExceeded) {
		t.Errorf("expected ErrReplayWindowExceeded, got %v", err)
	}
}

func TestVerify_WithinWindow(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	v := newTestVerifier(t, now)

	recent := now.Add(-299 * time.Second).Unix()
	body := []byte(`{"action":"system.ping"}`)
	header := fmt.Sprintf("t=%d,v1=%s", recent, v.Sign(recent, body))

	if err := v.Verify(header, body); err != nil {
		t.Errorf("expected signature just inside the window to pass, got %v", err)
	}
}

func TestVerify_MalformedBeatsReplay(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	v := newTestVerifier(t, now)

	// No digest at all: parse failure, not a replay failure.
	header := fmt.Sprintf("t=%d", now.Add(-time.Hour).Unix())
	if err := v.Verify(header, nil); !errors.Is(err, ErrMalformedHeader) {
		t.Errorf("expected ErrMalformedHeader, got %v", err)
	}
}

func TestNewVerifier_RequiresSecret(t *testing.T) {
	if _, err := NewVerifier(""); err == nil {
		t.Error("expected error for empty secret")
	}
}

func TestIsAuthenticationError(t *testing.T) {
	for _, err := range []error{ErrMalformedHeader, ErrSignatureMismatch, ErrReplayWindowExceeded} {
		if !IsAuthenticationError(fmt.Errorf("wrapped: %w", err)) {
			t.Errorf("expected %v to be an authentication error", err)
		}
	}
	if IsAuthenticationError(ErrUnknownAction) {
		t.Error("authorization errors must not count as authentication errors")
	}
}

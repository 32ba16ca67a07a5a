// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package auth authenticates and authorizes gateway traffic.
//
// Agent requests carry an HMAC signature header; operator requests to the
// admin API carry a JWT validated against a JWKS endpoint.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader is the request header carrying the HMAC signature.
const SignatureHeader = "X-Relay-Signature"

// DefaultReplayTolerance bounds how far a signed timestamp may drift
// from the server clock in either direction.
const DefaultReplayTolerance = 5 * time.Minute

// SignedRequest is a parsed signature header. Validated once per
// request and never persisted.
type SignedRequest struct {
	// Timestamp is the unix-seconds instant the client signed.
	Timestamp int64

	// Signatures holds every v1 hex digest supplied. Multiple digests
	// allow zero-downtime secret rotation on the client side.
	Signatures []string
}

// ParseSignatureHeader parses a header of comma-separated key=value
// pairs, e.g. "t=1717243800,v1=5257a869...". Unrecognized or malformed
// pairs are ignored; the header is rejected only when t is missing or
// non-numeric, or no v1 digest is present.
func ParseSignatureHeader(header string) (*SignedRequest, error) {
	if header == "" {
		return nil, fmt.Errorf("%w: empty header", ErrMalformedHeader)
	}

	signed := &SignedRequest{Timestamp: -1}

	for _, pair := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(pair), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: non-numeric timestamp %q", ErrMalformedHeader, value)
			}
			signed.Timestamp = ts
		case "v1":
			signed.Signatures = append(signed.Signatures, value)
		}
	}

	if signed.Timestamp < 0 {
		return nil, fmt.Errorf("%w: missing timestamp", ErrMalformedHeader)
	}
	if len(signed.Signatures) == 0 {
		return nil, fmt.Errorf("%w: no v1 signature", ErrMalformedHeader)
	}

	return signed, nil
}

// Verifier checks request signatures against a shared secret.
type Verifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithReplayTolerance overrides the replay window.
func WithReplayTolerance(tolerance time.Duration) VerifierOption {
	return func(v *Verifier) {
		if tolerance > 0 {
			v.tolerance = tolerance
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		v.now = now
	}
}

// NewVerifier creates a Verifier for the given shared secret.
func NewVerifier(secret string, opts ...VerifierOption) (*Verifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("signing secret is required")
	}

	v := &Verifier{
		secret:    []byte(secret),
		tolerance: DefaultReplayTolerance,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Verify authenticates a request from its signature header and raw body.
// The replay check runs before signature comparison so a stale request
// is rejected even when its digest is valid.
func (v *Verifier) Verify(header string, body []byte) error {
	signed, err := ParseSignatureHeader(header)
	if err != nil {
		return err
	}

	age := v.now().Unix() - signed.Timestamp
	if age < 0 {
		age = -age
	}
	if time.Duration(age)*time.Second > v.tolerance {
		return fmt.Errorf("%w: signed %ds ago", ErrReplayWindowExceeded, age)
	}

	expected := v.Sign(signed.Timestamp, body)

	// Compare against every digest without short-circuiting on the
	// first match, keeping the comparison count independent of input.
	matched := false
	for _, candidate := range signed.Signatures {
		if hmac.Equal([]byte(candidate), []byte(expected)) {
			matched = true
		}
	}
	if !matched {
		return ErrSignatureMismatch
	}

	return nil
}

// Sign computes the hex HMAC-SHA256 digest of "<timestamp>.<body>".
// Exposed so clients and tests can produce valid signatures.
func (v *Verifier) Sign(timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

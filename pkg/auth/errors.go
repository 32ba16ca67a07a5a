// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package auth

import "errors"

// Authentication errors. All three map to the same generic unauthorized
// response externally; they are distinct so logging can tell a broken
// client from a tampered or replayed request.
var (
	// ErrMalformedHeader is returned when the signature header cannot be parsed.
	ErrMalformedHeader = errors.New("malformed signature header")

	// ErrSignatureMismatch is returned when no supplied digest matches.
	ErrSignatureMismatch = errors.New("signature mismatch")

	// ErrReplayWindowExceeded is returned when the signed timestamp is stale.
	ErrReplayWindowExceeded = errors.New("timestamp outside replay window")
)

// Authorization errors. Unlike authentication errors these carry
// client-visible reasons.
var (
	// ErrUnknownAction is returned for actions absent from the capability map.
	ErrUnknownAction = errors.New("unknown action")

	// ErrCapabilityDenied is returned when the agent lacks the required capability.
	ErrCapabilityDenied = errors.New("capability denied")

	// ErrAgentNotActive is returned when the agent is inactive or suspended.
	ErrAgentNotActive = errors.New("agent not active")
)

// Admin API errors.
var (
	// ErrInvalidToken is returned when a token cannot be validated.
	ErrInvalidToken = errors.New("invalid token")

	// ErrForbidden is returned when the operator lacks the required role.
	ErrForbidden = errors.New("forbidden: insufficient permissions")
)

// IsAuthenticationError reports whether err is one of the signature
// verification failures that must surface as a generic unauthorized.
func IsAuthenticationError(err error) bool {
	return errors.Is(err, ErrMalformedHeader) ||
		errors.Is(err, ErrSignatureMismatch) ||
		errors.Is(err, ErrReplayWindowExceeded)
}

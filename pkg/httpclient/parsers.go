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

package httpclient

import (
	"net/http"
	"strconv"
	"time"
)

// ParseRateLimitHeaders extracts rate limit info from the standard
// headers relay and well-behaved agent endpoints emit: Retry-After
// (seconds or HTTP-date), X-RateLimit-Reset (unix seconds), and
// X-RateLimit-Remaining.
func ParseRateLimitHeaders(headers http.Header) RateLimitInfo {
	info := RateLimitInfo{}

	if retryAfter := headers.Get("Retry-After"); retryAfter != "" {
		if seconds, err := strconv.Atoi(retryAfter); err == nil {
			info.RetryAfter = time.Duration(seconds) * time.Second
		} else if at, err := http.ParseTime(retryAfter); err == nil {
			if until := time.Until(at); until > 0 {
				info.RetryAfter = until
			}
		}
	}

	if reset := headers.Get("X-RateLimit-Reset"); reset != "" {
		if unix, err := strconv.ParseInt(reset, 10, 64); err == nil {
			info.ResetTime = unix
		}
	}

	if remaining := headers.Get("X-RateLimit-Remaining"); remaining != "" {
		if n, err := strconv.Atoi(remaining); err == nil {
			info.RequestsRemaining = n
		}
	}

	return info
}

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

// Package ratelimit provides per-agent request rate limiting over a
// sliding one-minute window.
//
// Each agent carries its own requests-per-minute budget. A request is
// admitted when fewer than the budget's worth of requests landed in the
// trailing 60 seconds; otherwise the limiter reports when the oldest
// counted request falls out of the window.
package ratelimit

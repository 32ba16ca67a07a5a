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

package workflow

import "errors"

// Step execution errors. These surface inside a failed StepResult, not
// as returned errors; the exact timeout text is part of the step result
// contract consumers match on.
var (
	// ErrStepTimeout marks an attempt lost to the timeout race.
	ErrStepTimeout = errors.New("Step timed out")

	// ErrDispatchFailed marks a sink that returned no tracking id.
	ErrDispatchFailed = errors.New("dispatch failed: sink returned no id")

	// ErrUnknownStepType marks a step whose type has no executor.
	ErrUnknownStepType = errors.New("unknown step type")

	// ErrInvalidConditionExpression marks an unparseable condition.
	ErrInvalidConditionExpression = errors.New("invalid condition expression")
)

// Runner errors, returned to the caller before a run starts.
var (
	// ErrWorkflowInactive is returned when an inactive workflow is triggered.
	ErrWorkflowInactive = errors.New("workflow is not active")

	// ErrRunNotFound is returned when a run id is unknown.
	ErrRunNotFound = errors.New("run not found")
)

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

import (
	"fmt"
	"regexp"
	"strings"
)

// The condition grammar is deliberately tiny: a step reference with an
// optional field and equality comparison. It never grows into a general
// expression language; that would reopen a code injection surface
// inside workflow definitions.
//
//	<step_id>                       true iff that step completed
//	<step_id>.status == <value>
//	<step_id>.output != <value>
var conditionPattern = regexp.MustCompile(
	`^\s*([A-Za-z0-9_-]+)(?:\.(status|output))?(?:\s*(==|!=)\s*(.+?))?\s*$`)

// Condition is a parsed condition expression.
type Condition struct {
	// StepID is the referenced step.
	StepID string

	// Field is "status" or "output"; empty for a bare reference.
	Field string

	// Op is "==" or "!="; empty for a bare reference.
	Op string

	// Value is the comparison literal, quotes stripped.
	Value string
}

// ParseCondition parses an expression against the condition grammar.
func ParseCondition(expression string) (*Condition, error) {
	m := conditionPattern.FindStringSubmatch(expression)
	if m == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidConditionExpression, expression)
	}

	cond := &Condition{
		StepID: m[1],
		Field:  m[2],
		Op:     m[3],
		Value:  strings.Trim(m[4], `"'`),
	}

	// A field without a comparison, or a comparison without a field,
	// is not in the grammar.
	if (cond.Field == "") != (cond.Op == "") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidConditionExpression, expression)
	}

	return cond, nil
}

// Evaluate resolves the condition against prior step results.
// Referencing a step with no recorded result is an evaluation error;
// definition-time validation already rejects references to steps that
// do not exist at all.
func (c *Condition) Evaluate(results []StepResult) (bool, error) {
	result := findResult(results, c.StepID)
	if result == nil {
		return false, fmt.Errorf("%w: no result for step %q", ErrInvalidConditionExpression, c.StepID)
	}

	if c.Op == "" {
		return result.Status == StepCompleted, nil
	}

	var actual string
	switch c.Field {
	case "status":
		actual = string(result.Status)
	case "output":
		actual = outputText(result.Output)
	}

	if c.Op == "==" {
		return actual == c.Value, nil
	}
	return actual != c.Value, nil
}

// EvaluateCondition parses and evaluates in one call.
func EvaluateCondition(expression string, results []StepResult) (bool, error) {
	cond, err := ParseCondition(expression)
	if err != nil {
		return false, err
	}
	return cond.Evaluate(results)
}

// conditionSubject returns the step id an expression references, or ""
// when the expression does not parse.
func conditionSubject(expression string) string {
	cond, err := ParseCondition(expression)
	if err != nil {
		return ""
	}
	return cond.StepID
}

// outputText renders a step output for comparison. String outputs
// compare as-is; anything else compares by its printed form.
func outputText(output any) string {
	if s, ok := output.(string); ok {
		return s
	}
	return fmt.Sprint(output)
}

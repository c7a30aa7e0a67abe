package forms

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// Rule names reported in violations.
const (
	RuleRequired      = "required"
	RuleMinLength     = "min_length"
	RuleMaxLength     = "max_length"
	RuleMin           = "min"
	RuleMax           = "max"
	RuleStep          = "step"
	RuleFormat        = "format"
	RuleOption        = "option"
	RuleMinSelections = "min_selections"
	RuleMaxSelections = "max_selections"
)

var (
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9][0-9 ().-]{5,}$`)
	urlPattern   = regexp.MustCompile(`^https?://[^\s]+$`)
)

// Violation names one rule one answer failed to satisfy.
type Violation struct {
	QuestionID QuestionID `json:"question_id"`
	Rule       string     `json:"rule"`
	Message    string     `json:"message"`
}

// ValidationResult enumerates every violation at once so a caller can
// surface the complete list rather than failing one rule at a time.
type ValidationResult struct {
	OK         bool        `json:"ok"`
	Violations []Violation `json:"violations,omitempty"`
}

// ValidateSubmission checks a candidate answer set against the document,
// gated by the evaluator's visible-question set. Hidden questions are
// never validated: a stale answer left behind after a preceding answer
// hid its question is ignored, not rejected.
func ValidateSubmission(document Document, visible VisibleSet, answers AnswerSet) ValidationResult {
	var violations []Violation
	for _, question := range document.Questions() {
		if !visible.Has(question.ID) {
			continue
		}
		answer, answered := answers[question.ID]
		if !answered || answerAbsent(answer) {
			if question.Required {
				violations = append(violations, Violation{
					QuestionID: question.ID,
					Rule:       RuleRequired,
					Message:    "an answer is required",
				})
			}
			continue
		}
		violations = append(violations, checkAnswer(question, answer)...)
	}
	return ValidationResult{OK: len(violations) == 0, Violations: violations}
}

func checkAnswer(question Question, answer any) []Violation {
	switch {
	case question.Type.isText():
		return checkText(question, answer)
	case question.Type.isNumeric():
		return checkNumber(question, answer)
	case question.Type == QuestionTypeSelect:
		return checkSelect(question, answer)
	case question.Type == QuestionTypeMultiSelect:
		return checkMultiSelect(question, answer)
	case question.Type == QuestionTypeTristate:
		return checkTristate(question, answer)
	case question.Type == QuestionTypeDate:
		return checkDate(question, answer)
	default:
		// Lookup answers reference external entities; the engine only
		// requires a non-empty textual identifier.
		if answerString(answer) == "" {
			return []Violation{formatViolation(question, "expected an entity reference")}
		}
		return nil
	}
}

func checkText(question Question, answer any) []Violation {
	text, ok := answer.(string)
	if !ok {
		return []Violation{formatViolation(question, "expected a text value")}
	}
	text = strings.TrimSpace(text)

	var violations []Violation
	rules := question.Rules
	if rules.MinLength != nil && len(text) < *rules.MinLength {
		violations = append(violations, Violation{
			QuestionID: question.ID,
			Rule:       RuleMinLength,
			Message:    fmt.Sprintf("must be at least %d characters", *rules.MinLength),
		})
	}
	if rules.MaxLength != nil && len(text) > *rules.MaxLength {
		violations = append(violations, Violation{
			QuestionID: question.ID,
			Rule:       RuleMaxLength,
			Message:    fmt.Sprintf("must be at most %d characters", *rules.MaxLength),
		})
	}
	if formatViolated(question.Type, rules.Format, text) {
		violations = append(violations, formatViolation(question, "value does not match the expected format"))
	}
	return violations
}

func formatViolated(questionType QuestionType, formatTag, text string) bool {
	format := formatTag
	if format == "" {
		// Email, phone and url types carry an implicit format.
		switch questionType {
		case QuestionTypeEmail:
			format = "email"
		case QuestionTypePhone:
			format = "phone"
		case QuestionTypeURL:
			format = "url"
		}
	}
	switch format {
	case "email":
		return !emailPattern.MatchString(text)
	case "phone":
		return !phonePattern.MatchString(text)
	case "url":
		return !urlPattern.MatchString(text)
	case "date":
		_, ok := parseDate(text)
		return !ok
	default:
		return false
	}
}

func checkNumber(question Question, answer any) []Violation {
	value, ok := answerNumber(answer)
	if !ok {
		return []Violation{formatViolation(question, "expected a numeric value")}
	}

	var violations []Violation
	rules := question.Rules
	if rules.Min != nil && value < *rules.Min {
		violations = append(violations, Violation{
			QuestionID: question.ID,
			Rule:       RuleMin,
			Message:    fmt.Sprintf("must be at least %v", *rules.Min),
		})
	}
	if rules.Max != nil && value > *rules.Max {
		violations = append(violations, Violation{
			QuestionID: question.ID,
			Rule:       RuleMax,
			Message:    fmt.Sprintf("must be at most %v", *rules.Max),
		})
	}
	if rules.Step != nil && stepViolated(value, rules) {
		violations = append(violations, Violation{
			QuestionID: question.ID,
			Rule:       RuleStep,
			Message:    fmt.Sprintf("must align to increments of %v", *rules.Step),
		})
	}
	return violations
}

const stepTolerance = 1e-9

func stepViolated(value float64, rules ValidationRules) bool {
	base := 0.0
	if rules.Min != nil {
		base = *rules.Min
	}
	steps := (value - base) / *rules.Step
	return math.Abs(steps-math.Round(steps)) > stepTolerance
}

func checkSelect(question Question, answer any) []Violation {
	choice := answerString(answer)
	if !optionAllowed(question.Options, choice) {
		return []Violation{{
			QuestionID: question.ID,
			Rule:       RuleOption,
			Message:    fmt.Sprintf("%q is not one of the allowed options", choice),
		}}
	}
	return nil
}

func checkMultiSelect(question Question, answer any) []Violation {
	choices, ok := answerList(answer)
	if !ok {
		return []Violation{formatViolation(question, "expected a list of selections")}
	}

	var violations []Violation
	for _, choice := range choices {
		if !optionAllowed(question.Options, choice) {
			violations = append(violations, Violation{
				QuestionID: question.ID,
				Rule:       RuleOption,
				Message:    fmt.Sprintf("%q is not one of the allowed options", choice),
			})
		}
	}
	rules := question.Rules
	if rules.MinSelections != nil && len(choices) < *rules.MinSelections {
		violations = append(violations, Violation{
			QuestionID: question.ID,
			Rule:       RuleMinSelections,
			Message:    fmt.Sprintf("select at least %d options", *rules.MinSelections),
		})
	}
	if rules.MaxSelections != nil && len(choices) > *rules.MaxSelections {
		violations = append(violations, Violation{
			QuestionID: question.ID,
			Rule:       RuleMaxSelections,
			Message:    fmt.Sprintf("select at most %d options", *rules.MaxSelections),
		})
	}
	return violations
}

func checkTristate(question Question, answer any) []Violation {
	switch strings.ToLower(answerString(answer)) {
	case "yes", "no", "unknown":
		return nil
	default:
		return []Violation{formatViolation(question, `expected "yes", "no" or "unknown"`)}
	}
}

func checkDate(question Question, answer any) []Violation {
	text := answerString(answer)
	parsed, ok := parseDate(text)
	if !ok {
		return []Violation{formatViolation(question, "expected an ISO 8601 date")}
	}

	var violations []Violation
	rules := question.Rules
	day := float64(parsed.Unix())
	if rules.Min != nil && day < *rules.Min {
		violations = append(violations, Violation{
			QuestionID: question.ID,
			Rule:       RuleMin,
			Message:    "date is before the earliest allowed value",
		})
	}
	if rules.Max != nil && day > *rules.Max {
		violations = append(violations, Violation{
			QuestionID: question.ID,
			Rule:       RuleMax,
			Message:    "date is after the latest allowed value",
		})
	}
	return violations
}

func optionAllowed(options []string, choice string) bool {
	for _, option := range options {
		if strings.EqualFold(option, choice) {
			return true
		}
	}
	return false
}

func answerList(answer any) ([]string, bool) {
	switch v := answer.(type) {
	case []string:
		return v, true
	case []any:
		choices := make([]string, 0, len(v))
		for _, item := range v {
			text, ok := item.(string)
			if !ok {
				return nil, false
			}
			choices = append(choices, text)
		}
		return choices, true
	default:
		return nil, false
	}
}

func formatViolation(question Question, message string) Violation {
	return Violation{QuestionID: question.ID, Rule: RuleFormat, Message: message}
}

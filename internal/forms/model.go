package forms

import (
	"errors"
	"fmt"
	"strings"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidDocumentID indicates that a document identifier is empty or exceeds storage bounds.
	ErrInvalidDocumentID = errors.New("forms: invalid document id")
	// ErrInvalidQuestionID indicates that a question identifier is empty or exceeds storage bounds.
	ErrInvalidQuestionID = errors.New("forms: invalid question id")
	// ErrInvalidTenantID indicates that a tenant identifier is empty or exceeds storage bounds.
	ErrInvalidTenantID = errors.New("forms: invalid tenant id")
	// ErrInvalidQuestion indicates that a question definition is internally inconsistent.
	ErrInvalidQuestion = errors.New("forms: invalid question")
	// ErrInvalidCondition indicates that a conditional-visibility rule is malformed.
	ErrInvalidCondition = errors.New("forms: invalid condition")
	// ErrInvalidDocument indicates that a document definition is internally inconsistent.
	ErrInvalidDocument = errors.New("forms: invalid document")
)

// DocumentID represents a validated document identifier.
type DocumentID string

// NewDocumentID validates raw input and returns a DocumentID.
func NewDocumentID(rawInput string) (DocumentID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidDocumentID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidDocumentID, maxIdentifierLength)
	}
	return DocumentID(trimmed), nil
}

// String returns the underlying string identifier.
func (id DocumentID) String() string {
	return string(id)
}

// QuestionID represents a validated question identifier.
type QuestionID string

// NewQuestionID validates raw input and returns a QuestionID.
func NewQuestionID(rawInput string) (QuestionID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidQuestionID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidQuestionID, maxIdentifierLength)
	}
	return QuestionID(trimmed), nil
}

// String returns the underlying string identifier.
func (id QuestionID) String() string {
	return string(id)
}

// TenantID represents a validated tenant identifier.
type TenantID string

// NewTenantID validates raw input and returns a TenantID.
func NewTenantID(rawInput string) (TenantID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidTenantID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidTenantID, maxIdentifierLength)
	}
	return TenantID(trimmed), nil
}

// String returns the underlying string identifier.
func (id TenantID) String() string {
	return string(id)
}

// QuestionType enumerates the closed set of semantic question types.
type QuestionType string

const (
	QuestionTypeText          QuestionType = "text"
	QuestionTypeTextarea      QuestionType = "textarea"
	QuestionTypeNumber        QuestionType = "number"
	QuestionTypeCurrency      QuestionType = "currency"
	QuestionTypeSelect        QuestionType = "select"
	QuestionTypeMultiSelect   QuestionType = "multiselect"
	QuestionTypeTristate      QuestionType = "tristate"
	QuestionTypeDate          QuestionType = "date"
	QuestionTypeEmail         QuestionType = "email"
	QuestionTypePhone         QuestionType = "phone"
	QuestionTypeURL           QuestionType = "url"
	QuestionTypeAccountLookup QuestionType = "account_lookup"
	QuestionTypeContactLookup QuestionType = "contact_lookup"
)

// ParseQuestionType validates a raw type tag.
func ParseQuestionType(value string) (QuestionType, error) {
	switch QuestionType(strings.ToLower(strings.TrimSpace(value))) {
	case QuestionTypeText, QuestionTypeTextarea, QuestionTypeNumber, QuestionTypeCurrency,
		QuestionTypeSelect, QuestionTypeMultiSelect, QuestionTypeTristate, QuestionTypeDate,
		QuestionTypeEmail, QuestionTypePhone, QuestionTypeURL,
		QuestionTypeAccountLookup, QuestionTypeContactLookup:
		return QuestionType(strings.ToLower(strings.TrimSpace(value))), nil
	default:
		return "", fmt.Errorf("%w: unknown question type %q", ErrInvalidQuestion, value)
	}
}

func (t QuestionType) isSelect() bool {
	return t == QuestionTypeSelect || t == QuestionTypeMultiSelect
}

func (t QuestionType) isNumeric() bool {
	return t == QuestionTypeNumber || t == QuestionTypeCurrency
}

func (t QuestionType) isText() bool {
	switch t {
	case QuestionTypeText, QuestionTypeTextarea, QuestionTypeEmail, QuestionTypePhone, QuestionTypeURL:
		return true
	default:
		return false
	}
}

// Layout enumerates the rendering width hints carried by a question.
type Layout string

const (
	LayoutFull  Layout = "full"
	LayoutHalf  Layout = "half"
	LayoutThird Layout = "third"
)

// ParseLayout validates a raw layout tag; an empty value defaults to full width.
func ParseLayout(value string) (Layout, error) {
	switch Layout(strings.ToLower(strings.TrimSpace(value))) {
	case LayoutFull, "":
		return LayoutFull, nil
	case LayoutHalf:
		return LayoutHalf, nil
	case LayoutThird:
		return LayoutThird, nil
	default:
		return "", fmt.Errorf("%w: unknown layout %q", ErrInvalidQuestion, value)
	}
}

// ConditionOperator enumerates the comparison operators usable in visibility rules.
type ConditionOperator string

const (
	OperatorEquals      ConditionOperator = "equals"
	OperatorNotEquals   ConditionOperator = "not_equals"
	OperatorContains    ConditionOperator = "contains"
	OperatorIsEmpty     ConditionOperator = "is_empty"
	OperatorIsNotEmpty  ConditionOperator = "is_not_empty"
	OperatorGreaterThan ConditionOperator = "greater_than"
	OperatorLessThan    ConditionOperator = "less_than"
)

// ParseConditionOperator validates a raw operator tag.
func ParseConditionOperator(value string) (ConditionOperator, error) {
	switch ConditionOperator(strings.ToLower(strings.TrimSpace(value))) {
	case OperatorEquals, OperatorNotEquals, OperatorContains, OperatorIsEmpty,
		OperatorIsNotEmpty, OperatorGreaterThan, OperatorLessThan:
		return ConditionOperator(strings.ToLower(strings.TrimSpace(value))), nil
	default:
		return "", fmt.Errorf("%w: unknown operator %q", ErrInvalidCondition, value)
	}
}

func (op ConditionOperator) requiresValue() bool {
	return op != OperatorIsEmpty && op != OperatorIsNotEmpty
}

// LogicCombinator is declared on conditions for future multi-condition
// chaining. It is validated and persisted; evaluation remains
// single-condition.
type LogicCombinator string

const (
	CombinatorAnd LogicCombinator = "and"
	CombinatorOr  LogicCombinator = "or"
)

// ParseLogicCombinator validates a raw combinator tag; empty is allowed.
func ParseLogicCombinator(value string) (LogicCombinator, error) {
	switch LogicCombinator(strings.ToLower(strings.TrimSpace(value))) {
	case "":
		return "", nil
	case CombinatorAnd:
		return CombinatorAnd, nil
	case CombinatorOr:
		return CombinatorOr, nil
	default:
		return "", fmt.Errorf("%w: unknown combinator %q", ErrInvalidCondition, value)
	}
}

// Condition attaches a visibility rule to a question: the question is
// shown only when the referenced answer satisfies the operator.
type Condition struct {
	QuestionID QuestionID        `json:"question_id"`
	Operator   ConditionOperator `json:"operator"`
	Value      string            `json:"value,omitempty"`
	Combinator LogicCombinator   `json:"combinator,omitempty"`
}

func (c Condition) validate() error {
	if _, err := NewQuestionID(c.QuestionID.String()); err != nil {
		return fmt.Errorf("%w: reference: %v", ErrInvalidCondition, err)
	}
	if _, err := ParseConditionOperator(string(c.Operator)); err != nil {
		return err
	}
	if c.Operator.requiresValue() && strings.TrimSpace(c.Value) == "" {
		return fmt.Errorf("%w: operator %s requires a comparison value", ErrInvalidCondition, c.Operator)
	}
	if !c.Operator.requiresValue() && strings.TrimSpace(c.Value) != "" {
		return fmt.Errorf("%w: operator %s does not take a comparison value", ErrInvalidCondition, c.Operator)
	}
	if _, err := ParseLogicCombinator(string(c.Combinator)); err != nil {
		return err
	}
	return nil
}

// ValidationRules carries the per-question constraints applied by the
// submission validator. Pointer fields distinguish "absent" from zero.
type ValidationRules struct {
	MinLength     *int     `json:"min_length,omitempty"`
	MaxLength     *int     `json:"max_length,omitempty"`
	Min           *float64 `json:"min,omitempty"`
	Max           *float64 `json:"max,omitempty"`
	Step          *float64 `json:"step,omitempty"`
	MinSelections *int     `json:"min_selections,omitempty"`
	MaxSelections *int     `json:"max_selections,omitempty"`
	Format        string   `json:"format,omitempty"`
}

func (r ValidationRules) validate(questionType QuestionType) error {
	if (r.MinLength != nil || r.MaxLength != nil) && !questionType.isText() {
		return fmt.Errorf("%w: length bounds require a text type, got %s", ErrInvalidQuestion, questionType)
	}
	if (r.Min != nil || r.Max != nil || r.Step != nil) && !questionType.isNumeric() && questionType != QuestionTypeDate {
		return fmt.Errorf("%w: numeric bounds require a numeric or date type, got %s", ErrInvalidQuestion, questionType)
	}
	if (r.MinSelections != nil || r.MaxSelections != nil) && questionType != QuestionTypeMultiSelect {
		return fmt.Errorf("%w: selection bounds require multiselect, got %s", ErrInvalidQuestion, questionType)
	}
	if r.MinLength != nil && *r.MinLength < 0 {
		return fmt.Errorf("%w: negative min length", ErrInvalidQuestion)
	}
	if r.MinLength != nil && r.MaxLength != nil && *r.MinLength > *r.MaxLength {
		return fmt.Errorf("%w: min length exceeds max length", ErrInvalidQuestion)
	}
	if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
		return fmt.Errorf("%w: min exceeds max", ErrInvalidQuestion)
	}
	if r.Step != nil && *r.Step <= 0 {
		return fmt.Errorf("%w: step must be positive", ErrInvalidQuestion)
	}
	if r.MinSelections != nil && *r.MinSelections < 0 {
		return fmt.Errorf("%w: negative min selections", ErrInvalidQuestion)
	}
	if r.MinSelections != nil && r.MaxSelections != nil && *r.MinSelections > *r.MaxSelections {
		return fmt.Errorf("%w: min selections exceeds max selections", ErrInvalidQuestion)
	}
	return nil
}

// Question is one typed prompt inside a section.
type Question struct {
	ID        QuestionID      `json:"id"`
	Type      QuestionType    `json:"type"`
	Text      string          `json:"text"`
	HelpText  string          `json:"help_text,omitempty"`
	Required  bool            `json:"required"`
	Options   []string        `json:"options,omitempty"`
	Rules     ValidationRules `json:"validation,omitempty"`
	Condition *Condition      `json:"conditional_logic,omitempty"`
	Layout    Layout          `json:"layout,omitempty"`
}

func (q Question) validate() error {
	if _, err := NewQuestionID(q.ID.String()); err != nil {
		return err
	}
	if _, err := ParseQuestionType(string(q.Type)); err != nil {
		return err
	}
	if strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("%w: question %s has no display text", ErrInvalidQuestion, q.ID)
	}
	if len(q.Options) > 0 && !q.Type.isSelect() {
		return fmt.Errorf("%w: question %s carries options but is %s", ErrInvalidQuestion, q.ID, q.Type)
	}
	if q.Type.isSelect() && len(q.Options) == 0 {
		return fmt.Errorf("%w: question %s is %s but has no options", ErrInvalidQuestion, q.ID, q.Type)
	}
	if _, err := ParseLayout(string(q.Layout)); err != nil {
		return err
	}
	if err := q.Rules.validate(q.Type); err != nil {
		return fmt.Errorf("question %s: %w", q.ID, err)
	}
	if q.Condition != nil {
		if err := q.Condition.validate(); err != nil {
			return fmt.Errorf("question %s: %w", q.ID, err)
		}
	}
	return nil
}

// Section groups an ordered sequence of questions.
type Section struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Questions   []Question `json:"questions"`
}

// Document is one version of a form: a section/question tree plus the
// versioning and publication state that governs its lifecycle.
type Document struct {
	ID          DocumentID  `json:"id"`
	TenantID    TenantID    `json:"tenant_id"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Sections    []Section   `json:"sections"`
	Version     int64       `json:"version"`
	OriginalID  *DocumentID `json:"original_id,omitempty"`
	ValidFrom   int64       `json:"valid_from_s"`
	ValidUntil  *int64      `json:"valid_until_s,omitempty"`
	IsPublished bool        `json:"is_published"`
	PublishedAt *int64      `json:"published_at_s,omitempty"`

	// Cosmetic metadata: opaque to the engine, copied across versions.
	Recurrence     string `json:"recurrence,omitempty"`
	ReminderDays   int    `json:"reminder_days,omitempty"`
	SuccessMessage string `json:"success_message,omitempty"`
}

// Validate checks the full document definition, including every section,
// question, rule set, and conditional reference.
func (d Document) Validate() error {
	if _, err := NewDocumentID(d.ID.String()); err != nil {
		return err
	}
	if _, err := NewTenantID(d.TenantID.String()); err != nil {
		return err
	}
	if strings.TrimSpace(d.Title) == "" {
		return fmt.Errorf("%w: document %s has no title", ErrInvalidDocument, d.ID)
	}
	if d.Version < 1 {
		return fmt.Errorf("%w: document %s has non-positive version %d", ErrInvalidDocument, d.ID, d.Version)
	}
	if (d.OriginalID == nil) != (d.Version == 1) {
		return fmt.Errorf("%w: document %s original_id must be set exactly on versions past the first", ErrInvalidDocument, d.ID)
	}

	seen := make(map[QuestionID]struct{})
	for _, section := range d.Sections {
		if strings.TrimSpace(section.ID) == "" {
			return fmt.Errorf("%w: section without identifier in document %s", ErrInvalidDocument, d.ID)
		}
		for _, question := range section.Questions {
			if err := question.validate(); err != nil {
				return err
			}
			if _, duplicate := seen[question.ID]; duplicate {
				return fmt.Errorf("%w: duplicate question id %s", ErrInvalidDocument, question.ID)
			}
			seen[question.ID] = struct{}{}
		}
	}

	for _, question := range d.Questions() {
		if question.Condition == nil {
			continue
		}
		if question.Condition.QuestionID == question.ID {
			return fmt.Errorf("%w: question %s references itself", ErrInvalidCondition, question.ID)
		}
		if _, ok := seen[question.Condition.QuestionID]; !ok {
			return fmt.Errorf("%w: question %s references unknown question %s",
				ErrInvalidCondition, question.ID, question.Condition.QuestionID)
		}
	}
	return nil
}

// Questions returns every question in document order, flattened across sections.
func (d Document) Questions() []Question {
	total := 0
	for _, section := range d.Sections {
		total += len(section.Questions)
	}
	flattened := make([]Question, 0, total)
	for _, section := range d.Sections {
		flattened = append(flattened, section.Questions...)
	}
	return flattened
}

// QuestionByID finds a question anywhere in the section tree.
func (d Document) QuestionByID(id QuestionID) (Question, bool) {
	for _, section := range d.Sections {
		for _, question := range section.Questions {
			if question.ID == id {
				return question, true
			}
		}
	}
	return Question{}, false
}

// RootID resolves the lineage root: the document's own id on version 1,
// the original id on every later version.
func (d Document) RootID() DocumentID {
	if d.OriginalID != nil {
		return *d.OriginalID
	}
	return d.ID
}

// IsLive reports whether this row is the lineage's current version.
func (d Document) IsLive() bool {
	return d.ValidUntil == nil
}

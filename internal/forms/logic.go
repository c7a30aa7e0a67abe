package forms

import (
	"strconv"
	"strings"
	"time"
)

// AnswerSet maps question identifiers to raw respondent answers. Values
// follow JSON decoding conventions: string, float64, bool, or []any.
type AnswerSet map[QuestionID]any

// VisibleSet is the evaluator output: the questions a respondent may
// currently see and answer.
type VisibleSet map[QuestionID]struct{}

// Has reports whether the question is currently visible.
func (s VisibleSet) Has(id QuestionID) bool {
	_, ok := s[id]
	return ok
}

// Visible computes the visible-question set for a document against a
// partial answer set. When the conditional-logic graph contains a cycle
// the returned set is nil and hasCycle is true; the document must not be
// rendered or accept submissions until its owner repairs it.
func Visible(document Document, answers AnswerSet) (VisibleSet, bool) {
	graph := newLogicGraph(document)
	if graph.hasCycle() {
		return nil, true
	}
	return graph.visible(answers), false
}

const (
	nodeUnresolved = iota
	nodeHidden
	nodeVisible
)

// logicGraph is an arena of question nodes with at most one outgoing
// dependency edge each: edge i -> dependsOn[i] means "question i's
// visibility reads question dependsOn[i]'s answer". The same structure
// serves cycle detection and visibility propagation.
type logicGraph struct {
	questions []Question
	index     map[QuestionID]int
	dependsOn []int // node index of the referenced question, -1 when none resolves
	dangling  []bool
}

func newLogicGraph(document Document) *logicGraph {
	questions := document.Questions()
	graph := &logicGraph{
		questions: questions,
		index:     make(map[QuestionID]int, len(questions)),
		dependsOn: make([]int, len(questions)),
		dangling:  make([]bool, len(questions)),
	}
	for i, question := range questions {
		graph.index[question.ID] = i
	}
	for i, question := range questions {
		graph.dependsOn[i] = -1
		if question.Condition == nil {
			continue
		}
		target, ok := graph.index[question.Condition.QuestionID]
		if !ok {
			// Reference to a question outside the document: the
			// dependent question fails closed.
			graph.dangling[i] = true
			continue
		}
		graph.dependsOn[i] = target
	}
	return graph
}

const (
	colorWhite = iota
	colorGray
	colorBlack
)

// hasCycle runs a depth-first walk with gray/black marking. A gray node
// reached again is on the current recursion path, so the dependency
// chain loops; a self-reference is a cycle of length one.
func (g *logicGraph) hasCycle() bool {
	colors := make([]int8, len(g.questions))
	for start := range g.questions {
		if colors[start] != colorWhite {
			continue
		}
		node := start
		var path []int
		for node >= 0 && colors[node] == colorWhite {
			colors[node] = colorGray
			path = append(path, node)
			node = g.dependsOn[node]
		}
		if node >= 0 && colors[node] == colorGray {
			return true
		}
		for _, visited := range path {
			colors[visited] = colorBlack
		}
	}
	return false
}

// visible resolves every node against the answer set. Resolution is
// memoized so shared dependency chains evaluate once; hidden
// dependencies propagate hiding transitively.
func (g *logicGraph) visible(answers AnswerSet) VisibleSet {
	states := make([]int8, len(g.questions))
	result := make(VisibleSet, len(g.questions))
	for i := range g.questions {
		if g.resolve(i, answers, states) {
			result[g.questions[i].ID] = struct{}{}
		}
	}
	return result
}

func (g *logicGraph) resolve(node int, answers AnswerSet, states []int8) bool {
	if states[node] != nodeUnresolved {
		return states[node] == nodeVisible
	}

	question := g.questions[node]
	visible := false
	switch {
	case question.Condition == nil:
		visible = true
	case g.dangling[node]:
		visible = false
	default:
		target := g.dependsOn[node]
		if g.resolve(target, answers, states) {
			visible = evalCondition(*question.Condition, answers[g.questions[target].ID])
		}
	}

	if visible {
		states[node] = nodeVisible
	} else {
		states[node] = nodeHidden
	}
	return visible
}

// evalCondition applies a single comparison operator to the raw answer
// of the referenced question. Comparison operators that cannot parse
// their operands fail closed.
func evalCondition(condition Condition, answer any) bool {
	switch condition.Operator {
	case OperatorIsEmpty:
		return answerAbsent(answer)
	case OperatorIsNotEmpty:
		return !answerAbsent(answer)
	case OperatorEquals:
		return answerEquals(answer, condition.Value)
	case OperatorNotEquals:
		if answerAbsent(answer) {
			return false
		}
		return !answerEquals(answer, condition.Value)
	case OperatorContains:
		text, ok := answer.(string)
		if !ok {
			return false
		}
		return strings.Contains(strings.ToLower(text), strings.ToLower(condition.Value))
	case OperatorGreaterThan:
		return answerCompare(answer, condition.Value, func(delta int) bool { return delta > 0 })
	case OperatorLessThan:
		return answerCompare(answer, condition.Value, func(delta int) bool { return delta < 0 })
	default:
		return false
	}
}

// answerAbsent treats nil, unset, blank strings, and empty selections as
// "no answer".
func answerAbsent(answer any) bool {
	switch v := answer.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []any:
		return len(v) == 0
	case []string:
		return len(v) == 0
	default:
		return false
	}
}

func answerEquals(answer any, expected string) bool {
	if answerAbsent(answer) {
		return false
	}
	if left, okLeft := answerNumber(answer); okLeft {
		if right, okRight := parseNumber(expected); okRight {
			return left == right
		}
	}
	return strings.EqualFold(answerString(answer), strings.TrimSpace(expected))
}

func answerCompare(answer any, expected string, accept func(delta int) bool) bool {
	if left, ok := answerNumber(answer); ok {
		right, ok := parseNumber(expected)
		if !ok {
			return false
		}
		switch {
		case left > right:
			return accept(1)
		case left < right:
			return accept(-1)
		default:
			return accept(0)
		}
	}
	leftDate, okLeft := parseDate(answerString(answer))
	rightDate, okRight := parseDate(expected)
	if !okLeft || !okRight {
		return false
	}
	switch {
	case leftDate.After(rightDate):
		return accept(1)
	case leftDate.Before(rightDate):
		return accept(-1)
	default:
		return accept(0)
	}
}

func answerString(answer any) string {
	switch v := answer.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

func answerNumber(answer any) (float64, bool) {
	switch v := answer.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		return parseNumber(v)
	default:
		return 0, false
	}
}

func parseNumber(value string) (float64, bool) {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

const dateLayout = "2006-01-02"

func parseDate(value string) (time.Time, bool) {
	parsed, err := time.Parse(dateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

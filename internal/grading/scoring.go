package grading

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Answer types supported by the platform. The set is closed but the switch
// in Grade is the single place a new type plugs into.
const (
	AnswerTypeABCD    = "abcd"
	AnswerTypeNumeric = "numeric"
)

var ErrUnsupportedAnswerType = errors.New("unsupported answer type")

// Answer is the tagged submitted-answer variant. Exactly one branch is set,
// selected by the exercise's answer type at decode time.
type Answer struct {
	ABCD    *ABCDAnswer
	Numeric *NumericAnswer
}

type ABCDAnswer struct {
	Choice string `json:"choice"`
}

type NumericAnswer struct {
	Value string `json:"value"`
}

// ABCDKey is the stored key for abcd exercises: four option labels plus the
// correct letter.
type ABCDKey struct {
	Options map[string]string `json:"options"`
	Correct string            `json:"correct"`
}

type NumericKey struct {
	Value json.RawMessage `json:"value"`
}

// DecodeAnswer validates the raw submitted payload against the exercise's
// answer type and returns the tagged variant.
func DecodeAnswer(answerType string, raw json.RawMessage) (Answer, error) {
	switch answerType {
	case AnswerTypeABCD:
		var a ABCDAnswer
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &a); err != nil {
				return Answer{}, fmt.Errorf("decode abcd answer: %w", err)
			}
		}
		return Answer{ABCD: &a}, nil
	case AnswerTypeNumeric:
		var payload struct {
			Value json.RawMessage `json:"value"`
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &payload); err != nil {
				return Answer{}, fmt.Errorf("decode numeric answer: %w", err)
			}
		}
		return Answer{Numeric: &NumericAnswer{Value: rawToString(payload.Value)}}, nil
	default:
		return Answer{}, fmt.Errorf("%w: %s", ErrUnsupportedAnswerType, answerType)
	}
}

// Grade returns the correctness verdict for one exercise. Pure: any storage
// or shape problem in the submitted value grades as incorrect, never errors;
// only an unknown answer type is an error.
func Grade(answerType string, answerKey json.RawMessage, answer Answer) (bool, error) {
	switch answerType {
	case AnswerTypeABCD:
		var key ABCDKey
		if err := json.Unmarshal(answerKey, &key); err != nil {
			return false, fmt.Errorf("decode abcd key: %w", err)
		}
		choice := ""
		if answer.ABCD != nil {
			choice = answer.ABCD.Choice
		}
		return gradeABCD(key.Correct, choice), nil
	case AnswerTypeNumeric:
		var key NumericKey
		if err := json.Unmarshal(answerKey, &key); err != nil {
			return false, fmt.Errorf("decode numeric key: %w", err)
		}
		value := ""
		if answer.Numeric != nil {
			value = answer.Numeric.Value
		}
		return gradeNumeric(rawToString(key.Value), value), nil
	default:
		return false, fmt.Errorf("%w: %s", ErrUnsupportedAnswerType, answerType)
	}
}

// CorrectAnswer extracts the display form of the stored key for the
// per-question test breakdown.
func CorrectAnswer(answerType string, answerKey json.RawMessage) string {
	switch answerType {
	case AnswerTypeABCD:
		var key ABCDKey
		if err := json.Unmarshal(answerKey, &key); err != nil {
			return ""
		}
		return strings.ToUpper(strings.TrimSpace(key.Correct))
	case AnswerTypeNumeric:
		var key NumericKey
		if err := json.Unmarshal(answerKey, &key); err != nil {
			return ""
		}
		return strings.TrimSpace(rawToString(key.Value))
	default:
		return ""
	}
}

func gradeABCD(correct, choice string) bool {
	c := strings.ToUpper(strings.TrimSpace(choice))
	k := strings.ToUpper(strings.TrimSpace(correct))
	return c != "" && c == k
}

func gradeNumeric(correct, value string) bool {
	got, okGot := normalizeNumeric(value)
	want, okWant := normalizeNumeric(correct)
	return okGot && okWant && got == want
}

// normalizeNumeric trims, accepts a comma decimal separator, and parses as
// float. A non-parsable value reports false rather than an error.
func normalizeNumeric(v string) (float64, bool) {
	s := strings.ReplaceAll(strings.TrimSpace(v), ",", ".")
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// rawToString renders a JSON scalar as its text form. Keys store numbers as
// either JSON numbers or strings; both compare through the same path.
func rawToString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return strings.TrimSpace(string(raw))
}

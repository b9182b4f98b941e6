package ml

import (
	"sort"
)

// LabelEncoder maps the distinct values of one categorical field onto dense codes.
// Classes is sorted, so the code of a value is its index in Classes.
type LabelEncoder struct {
	Field   string
	Classes []string
}

// FitEncoder builds the vocabulary of field from values.
func FitEncoder(field string, values []string) (*LabelEncoder, error) {
	if len(values) == 0 {
		return nil, inputErrorf("cannot fit %s encoder: no values", field)
	}
	seen := make(map[string]struct{}, len(values))
	classes := make([]string, 0)
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		classes = append(classes, v)
	}
	sort.Strings(classes)
	return &LabelEncoder{Field: field, Classes: classes}, nil
}

// Len returns the vocabulary size.
func (e *LabelEncoder) Len() int {
	return len(e.Classes)
}

// Contains reports whether value is part of the fitted vocabulary.
func (e *LabelEncoder) Contains(value string) bool {
	_, ok := e.lookup(value)
	return ok
}

// Encode returns the code of value, or an *UnknownCategoryError.
func (e *LabelEncoder) Encode(value string) (int, error) {
	code, ok := e.lookup(value)
	if !ok {
		return 0, &UnknownCategoryError{Field: e.Field, Value: value}
	}
	return code, nil
}

// EncodeAll encodes every value, failing on the first unknown one.
func (e *LabelEncoder) EncodeAll(values []string) ([]int, error) {
	codes := make([]int, len(values))
	for i, v := range values {
		code, err := e.Encode(v)
		if err != nil {
			return nil, err
		}
		codes[i] = code
	}
	return codes, nil
}

// Decode is the inverse of Encode. An out-of-range code means the model and the
// encoder do not belong together.
func (e *LabelEncoder) Decode(code int) (string, error) {
	if code < 0 || code >= len(e.Classes) {
		return "", inputErrorf("%s code %d out of range [0, %d)", e.Field, code, len(e.Classes))
	}
	return e.Classes[code], nil
}

// Vocabulary returns a copy of the fitted classes in code order.
func (e *LabelEncoder) Vocabulary() []string {
	return append([]string(nil), e.Classes...)
}

func (e *LabelEncoder) lookup(value string) (int, bool) {
	i := sort.SearchStrings(e.Classes, value)
	if i < len(e.Classes) && e.Classes[i] == value {
		return i, true
	}
	return 0, false
}

// validate checks the invariants a decoded encoder must hold.
func (e *LabelEncoder) validate() error {
	if len(e.Classes) == 0 {
		return inputErrorf("%s encoder has an empty vocabulary", e.Field)
	}
	for i := 1; i < len(e.Classes); i++ {
		if e.Classes[i-1] >= e.Classes[i] {
			return inputErrorf("%s encoder vocabulary is not strictly sorted", e.Field)
		}
	}
	return nil
}

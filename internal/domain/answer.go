package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// AnswerKind tags which variant an Answer holds.
type AnswerKind uint8

const (
	AnswerNone AnswerKind = iota
	AnswerIndex
	AnswerIndices
	AnswerText
)

// Answer is either nothing, an option index, a set of option indices, or free text.
// It serves both as a student's response and as a question's correct answer.
// JSON form: null, a number, an array of numbers, or a string.
type Answer struct {
	kind    AnswerKind
	index   int
	indices []int
	text    string
}

func IndexAnswer(i int) Answer {
	return Answer{kind: AnswerIndex, index: i}
}

func IndicesAnswer(indices ...int) Answer {
	cp := make([]int, len(indices))
	copy(cp, indices)
	return Answer{kind: AnswerIndices, indices: cp}
}

func TextAnswer(s string) Answer {
	return Answer{kind: AnswerText, text: s}
}

func (a Answer) Kind() AnswerKind { return a.kind }

func (a Answer) Index() (int, bool) {
	return a.index, a.kind == AnswerIndex
}

// Indices returns a copy of the selected indices.
func (a Answer) Indices() ([]int, bool) {
	if a.kind != AnswerIndices {
		return nil, false
	}
	cp := make([]int, len(a.indices))
	copy(cp, a.indices)
	return cp, true
}

func (a Answer) Text() (string, bool) {
	return a.text, a.kind == AnswerText
}

// IsEmpty reports whether the answer carries no selection: nothing, an empty set, or empty text.
func (a Answer) IsEmpty() bool {
	switch a.kind {
	case AnswerIndices:
		return len(a.indices) == 0
	case AnswerText:
		return a.text == ""
	case AnswerIndex:
		return false
	}
	return true
}

// Clone returns an answer that shares no memory with a.
func (a Answer) Clone() Answer {
	if a.kind == AnswerIndices {
		return IndicesAnswer(a.indices...)
	}
	return a
}

// Equal is structural equality; indices are compared in order.
func (a Answer) Equal(b Answer) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case AnswerIndex:
		return a.index == b.index
	case AnswerText:
		return a.text == b.text
	case AnswerIndices:
		if len(a.indices) != len(b.indices) {
			return false
		}
		for i := range a.indices {
			if a.indices[i] != b.indices[i] {
				return false
			}
		}
	}
	return true
}

func (a Answer) String() string {
	switch a.kind {
	case AnswerIndex:
		return fmt.Sprintf("%d", a.index)
	case AnswerIndices:
		return fmt.Sprint(a.indices)
	case AnswerText:
		return a.text
	}
	return ""
}

func (a Answer) MarshalJSON() ([]byte, error) {
	switch a.kind {
	case AnswerIndex:
		return json.Marshal(a.index)
	case AnswerIndices:
		if a.indices == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(a.indices)
	case AnswerText:
		return json.Marshal(a.text)
	}
	return []byte("null"), nil
}

func (a *Answer) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = Answer{}
		return nil
	}
	switch data[0] {
	case '[':
		var indices []int
		if err := json.Unmarshal(data, &indices); err != nil {
			return fmt.Errorf("decode answer indices: %w", err)
		}
		*a = IndicesAnswer(indices...)
	case '"':
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return fmt.Errorf("decode answer text: %w", err)
		}
		*a = TextAnswer(text)
	default:
		var idx int
		if err := json.Unmarshal(data, &idx); err != nil {
			return fmt.Errorf("decode answer index: %w", err)
		}
		*a = IndexAnswer(idx)
	}
	return nil
}

// CloneAnswers deep-copies an answer map.
func CloneAnswers(in map[int64]Answer) map[int64]Answer {
	out := make(map[int64]Answer, len(in))
	for id, a := range in {
		out[id] = a.Clone()
	}
	return out
}

package form

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/domain"
)

// visible evaluates a show_if predicate against the answers accepted so far.
// A reference to a hidden or unanswered field is false.
func visible(s ShowIf, accepted map[int64]domain.FieldValue) bool {
	answer, ok := accepted[s.FieldID]
	if !ok {
		return false
	}

	var want interface{}
	if err := json.Unmarshal(s.Value, &want); err != nil {
		return false
	}

	switch s.Operator {
	case OpEq, "":
		return equalValue(answer, want)
	case OpNeq:
		return !equalValue(answer, want)
	case OpIn, OpNotIn:
		list, ok := want.([]interface{})
		if !ok {
			return false
		}
		found := false
		for _, w := range list {
			if equalValue(answer, w) {
				found = true
				break
			}
		}
		return found == (s.Operator == OpIn)
	case OpGt, OpGte, OpLt, OpLte:
		n, ok := answer.Number()
		if !ok {
			return false
		}
		w, ok := want.(float64)
		if !ok {
			return false
		}
		return compareNumbers(s.Operator, n, w)
	}
	return false
}

// equalValue compares an answer with a decoded JSON literal. yes_no answers
// also match "yes"/"no" and "true"/"false" strings.
func equalValue(v domain.FieldValue, want interface{}) bool {
	switch v.Kind() {
	case domain.KindNumber:
		n, _ := v.Number()
		w, ok := want.(float64)
		return ok && n == w
	case domain.KindText, domain.KindFile:
		s := v.Interface().(string)
		w, ok := want.(string)
		return ok && s == w
	case domain.KindBool:
		b, _ := v.Bool()
		switch w := want.(type) {
		case bool:
			return b == w
		case string:
			switch strings.ToLower(w) {
			case "yes", "true":
				return b
			case "no", "false":
				return !b
			}
		}
	}
	return false
}

func compareNumbers(op Operator, v, threshold float64) bool {
	switch op {
	case OpGt:
		return v > threshold
	case OpGte:
		return v >= threshold
	case OpLt:
		return v < threshold
	case OpLte:
		return v <= threshold
	case OpEq:
		return v == threshold
	case OpNeq:
		return v != threshold
	}
	return false
}

func strconvFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

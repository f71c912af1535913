package form

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/domain"
	apperrors "github.com/kitchensafe/kitchensafe-backend/pkg/errors"
)

// Sorted returns the fields ordered by field_order, then id.
func Sorted(fields []Field) []Field {
	out := make([]Field, len(fields))
	copy(out, fields)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ValidateSchema checks the whole field set of one task. show_if and
// repeat_count_field_id may only point at fields with a smaller order, so
// the visibility graph is acyclic and the evaluator can walk it in order.
func ValidateSchema(fields []Field) error {
	byID := make(map[int64]Field, len(fields))
	for _, f := range fields {
		if f.ID != 0 {
			byID[f.ID] = f
		}
	}

	details := map[string]string{}
	for _, f := range Sorted(fields) {
		key := f.Key()

		if f.ShowIf != nil {
			if err := checkShowIf(f, byID); err != nil {
				return err
			}
		}

		if msg := checkField(f, byID); msg != "" {
			details[key] = msg
		}
	}

	if len(details) > 0 {
		return apperrors.InvalidSchema("task fields are invalid", details)
	}
	return nil
}

func checkShowIf(f Field, byID map[int64]Field) error {
	key := f.Key()
	s := f.ShowIf

	if s.FieldID == f.ID && f.ID != 0 {
		return apperrors.CycleInVisibility(key, "show_if references the field itself")
	}
	ref, ok := byID[s.FieldID]
	if !ok {
		return apperrors.InvalidSchema("show_if references an unknown field",
			map[string]string{key: fmt.Sprintf("field %d does not exist in this task", s.FieldID)})
	}
	if ref.Order >= f.Order {
		return apperrors.CycleInVisibility(key,
			fmt.Sprintf("show_if must reference an earlier field, field %d is not before this one", s.FieldID))
	}
	if ref.Type == domain.FieldRepeatingGroup {
		return apperrors.InvalidSchema("show_if cannot reference a repeating group",
			map[string]string{key: "show_if references a repeating_group"})
	}

	op := s.Operator
	if op == "" {
		op = OpEq
	}
	if _, ok := ParseOperator(string(op)); !ok {
		return apperrors.InvalidSchema("unknown show_if operator", map[string]string{key: string(op)})
	}
	if isNull(s.Value) {
		return apperrors.InvalidSchema("show_if value is required", map[string]string{key: "show_if value is required"})
	}
	if op == OpIn || op == OpNotIn {
		var list []json.RawMessage
		if err := json.Unmarshal(s.Value, &list); err != nil {
			return apperrors.InvalidSchema("show_if value must be a list",
				map[string]string{key: fmt.Sprintf("operator %s needs a list value", op)})
		}
	}
	return nil
}

// checkField returns a reason when f itself is malformed, or "".
func checkField(f Field, byID map[int64]Field) string {
	if !f.Type.Valid() {
		return fmt.Sprintf("unknown field type %q", f.Type)
	}
	if f.Label == "" {
		return "label is required"
	}
	if f.Type == domain.FieldDropdown && len(f.Options) == 0 {
		return "dropdown needs at least one option"
	}
	if msg := checkRules(f.Type, f.Rules); msg != "" {
		return msg
	}

	if f.Type != domain.FieldRepeatingGroup {
		return ""
	}

	if f.Rules.RepeatCountFieldID == nil {
		return "repeating_group needs repeat_count_field_id"
	}
	count, ok := byID[*f.Rules.RepeatCountFieldID]
	switch {
	case !ok:
		return fmt.Sprintf("repeat_count_field_id %d does not exist in this task", *f.Rules.RepeatCountFieldID)
	case count.Type != domain.FieldNumber:
		return "repeat_count_field_id must reference a number field"
	case count.Order >= f.Order:
		return "repeat_count_field_id must reference an earlier field"
	}

	if len(f.Rules.Template) == 0 {
		return "repeating_group needs a non-empty template"
	}
	seen := map[string]bool{}
	for _, sub := range f.Rules.Template {
		switch {
		case sub.Key == "":
			return "template entries need a key"
		case seen[sub.Key]:
			return fmt.Sprintf("duplicate template key %q", sub.Key)
		case sub.Type == domain.FieldRepeatingGroup:
			return "repeating groups cannot be nested"
		case !sub.Type.Valid():
			return fmt.Sprintf("template %q: unknown field type %q", sub.Key, sub.Type)
		case sub.Type == domain.FieldDropdown && len(sub.Options) == 0:
			return fmt.Sprintf("template %q: dropdown needs at least one option", sub.Key)
		}
		seen[sub.Key] = true
		if msg := checkRules(sub.Type, sub.Rules); msg != "" {
			return fmt.Sprintf("template %q: %s", sub.Key, msg)
		}
	}
	return ""
}

func checkRules(t domain.FieldType, r Rules) string {
	if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
		return "min must not exceed max"
	}
	if (r.Min != nil || r.Max != nil) && !t.IsNumeric() {
		return "min and max apply only to number and temperature fields"
	}
	if c := r.CreateDefectIf; c != nil {
		if !t.IsNumeric() {
			return "create_defect_if applies only to number and temperature fields"
		}
		if c.OutOfRange && r.Min == nil && r.Max == nil {
			return "out_of_range needs min or max"
		}
		if !c.OutOfRange && !c.Operator.IsThreshold() {
			return fmt.Sprintf("threshold operator %q is not allowed", c.Operator)
		}
	}
	return ""
}

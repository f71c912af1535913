// Package form decodes task field templates, validates their structure and
// evaluates submissions against them. It has no storage dependencies.
package form

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx/types"

	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/domain"
	apperrors "github.com/kitchensafe/kitchensafe-backend/pkg/errors"
)

// Operator is a comparison used by show_if predicates and defect thresholds.
type Operator string

const (
	OpEq    Operator = "eq"
	OpNeq   Operator = "neq"
	OpIn    Operator = "in"
	OpNotIn Operator = "not_in"
	OpGt    Operator = "gt"
	OpGte   Operator = "gte"
	OpLt    Operator = "lt"
	OpLte   Operator = "lte"
)

var operatorAliases = map[string]Operator{
	"=":  OpEq,
	"==": OpEq,
	"!=": OpNeq,
	"<>": OpNeq,
	">":  OpGt,
	">=": OpGte,
	"<":  OpLt,
	"<=": OpLte,
}

// ParseOperator normalises symbolic spellings. An empty string means eq.
func ParseOperator(s string) (Operator, bool) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return OpEq, true
	}
	if op, ok := operatorAliases[s]; ok {
		return op, true
	}
	switch op := Operator(s); op {
	case OpEq, OpNeq, OpIn, OpNotIn, OpGt, OpGte, OpLt, OpLte:
		return op, true
	}
	return "", false
}

// IsThreshold reports whether op may be used in a create_defect_if threshold.
func (op Operator) IsThreshold() bool {
	switch op {
	case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte:
		return true
	}
	return false
}

func (op *Operator) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, ok := ParseOperator(s)
	if !ok {
		return fmt.Errorf("unknown operator %q", s)
	}
	*op = parsed
	return nil
}

// ShowIf makes a field visible only when an earlier field's answer matches.
type ShowIf struct {
	FieldID  int64           `json:"field_id"`
	Operator Operator        `json:"operator,omitempty"`
	Value    json.RawMessage `json:"value"`
}

// OutOfRange is the string form of create_defect_if.
const OutOfRange = "out_of_range"

// DefectCondition is create_defect_if: either out_of_range, or a
// {threshold, operator} comparison.
type DefectCondition struct {
	OutOfRange bool
	Threshold  float64
	Operator   Operator
}

func (c *DefectCondition) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if s != OutOfRange {
			return fmt.Errorf("unknown create_defect_if %q", s)
		}
		*c = DefectCondition{OutOfRange: true}
		return nil
	}

	var obj struct {
		Threshold *float64 `json:"threshold"`
		Operator  Operator `json:"operator"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	if obj.Threshold == nil {
		return fmt.Errorf("create_defect_if threshold is required")
	}
	if obj.Operator == "" {
		obj.Operator = OpGt
	}
	*c = DefectCondition{Threshold: *obj.Threshold, Operator: obj.Operator}
	return nil
}

func (c DefectCondition) MarshalJSON() ([]byte, error) {
	if c.OutOfRange {
		return json.Marshal(OutOfRange)
	}
	return json.Marshal(struct {
		Threshold float64  `json:"threshold"`
		Operator  Operator `json:"operator"`
	}{c.Threshold, c.Operator})
}

// SubField is one entry of a repeating group's per-repeat template.
type SubField struct {
	Key      string           `json:"key"`
	Label    string           `json:"label"`
	Type     domain.FieldType `json:"field_type"`
	Required bool             `json:"required,omitempty"`
	Rules    Rules            `json:"validation_rules,omitempty"`
	Options  []string         `json:"options,omitempty"`
}

// Rules is the decoded validation_rules column.
type Rules struct {
	Min                *float64         `json:"min,omitempty"`
	Max                *float64         `json:"max,omitempty"`
	CreateDefectIf     *DefectCondition `json:"create_defect_if,omitempty"`
	RepeatCountFieldID *int64           `json:"repeat_count_field_id,omitempty"`
	RepeatLabel        string           `json:"repeat_label,omitempty"`
	Template           []SubField       `json:"template,omitempty"`
}

func (r Rules) empty() bool {
	return r.Min == nil && r.Max == nil && r.CreateDefectIf == nil &&
		r.RepeatCountFieldID == nil && r.RepeatLabel == "" && len(r.Template) == 0
}

// Field is a task field with its JSON columns decoded.
type Field struct {
	ID       int64            `json:"id"`
	TaskID   int64            `json:"task_id"`
	Type     domain.FieldType `json:"field_type"`
	Label    string           `json:"label"`
	Order    int              `json:"field_order"`
	Required bool             `json:"is_required"`
	Rules    Rules            `json:"validation_rules"`
	Options  []string         `json:"options,omitempty"`
	ShowIf   *ShowIf          `json:"show_if,omitempty"`
}

// Key identifies the field in error details.
func (f Field) Key() string {
	if f.ID == 0 {
		return "field_new"
	}
	return fmt.Sprintf("field_%d", f.ID)
}

// Decode reads the JSON columns of a stored field.
func Decode(tf domain.TaskField) (Field, error) {
	f := Field{
		ID:       tf.ID,
		TaskID:   tf.TaskID,
		Type:     tf.FieldType,
		Label:    tf.Label,
		Order:    tf.FieldOrder,
		Required: tf.IsRequired,
	}
	key := f.Key()

	if isSet(tf.ValidationRules) {
		if err := json.Unmarshal(*tf.ValidationRules, &f.Rules); err != nil {
			return Field{}, apperrors.InvalidSchema("malformed validation_rules", map[string]string{key: err.Error()})
		}
	}
	if isSet(tf.Options) {
		opts, err := decodeOptions(*tf.Options)
		if err != nil {
			return Field{}, apperrors.InvalidSchema("malformed options", map[string]string{key: err.Error()})
		}
		f.Options = opts
	}
	if isSet(tf.ShowIf) {
		var s ShowIf
		if err := json.Unmarshal(*tf.ShowIf, &s); err != nil {
			return Field{}, apperrors.InvalidSchema("malformed show_if", map[string]string{key: err.Error()})
		}
		if s.Operator == "" {
			s.Operator = OpEq
		}
		f.ShowIf = &s
	}
	return f, nil
}

// DecodeAll decodes a task's fields, keeping their order.
func DecodeAll(tfs []domain.TaskField) ([]Field, error) {
	out := make([]Field, 0, len(tfs))
	for _, tf := range tfs {
		f, err := Decode(tf)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// Columns encodes the decoded structures back into storable JSON columns.
// Empty rules, options and predicates are stored as NULL.
func (f Field) Columns() (rules, options, showIf *types.JSONText, err error) {
	if !f.Rules.empty() {
		if rules, err = jsonText(f.Rules); err != nil {
			return nil, nil, nil, err
		}
	}
	if len(f.Options) > 0 {
		if options, err = jsonText(f.Options); err != nil {
			return nil, nil, nil, err
		}
	}
	if f.ShowIf != nil {
		if showIf, err = jsonText(f.ShowIf); err != nil {
			return nil, nil, nil, err
		}
	}
	return rules, options, showIf, nil
}

// decodeOptions accepts ["a","b"] or [{"value":"a","label":"A"}].
func decodeOptions(b []byte) ([]string, error) {
	var plain []string
	if err := json.Unmarshal(b, &plain); err == nil {
		return plain, nil
	}
	var objs []struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(b, &objs); err != nil {
		return nil, err
	}
	out := make([]string, len(objs))
	for i, o := range objs {
		out[i] = o.Value
	}
	return out, nil
}

func isSet(j *types.JSONText) bool {
	if j == nil {
		return false
	}
	b := bytes.TrimSpace(*j)
	return len(b) > 0 && !bytes.Equal(b, []byte("null"))
}

func isNull(raw json.RawMessage) bool {
	b := bytes.TrimSpace(raw)
	return len(b) == 0 || bytes.Equal(b, []byte("null"))
}

func jsonText(v interface{}) (*types.JSONText, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	j := types.JSONText(b)
	return &j, nil
}

package form

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/domain"
	apperrors "github.com/kitchensafe/kitchensafe-backend/pkg/errors"
)

// ResponseInput is one submitted field value. Value is raw JSON whose shape
// depends on the field type; null means missing.
type ResponseInput struct {
	FieldID int64           `json:"field_id" validate:"required,gt=0"`
	Value   json.RawMessage `json:"value"`
}

// Submission is the payload of submit_item.
type Submission struct {
	Responses []ResponseInput `json:"responses" validate:"dive"`
	Notes     *string         `json:"notes,omitempty" validate:"omitempty,max=4000"`
	PhotoURL  *string         `json:"photo_url,omitempty" validate:"omitempty,max=2048"`
}

// DefectDraft is a defect the evaluator wants raised. Index is the 1-based
// repeat index inside a repeating group, 0 for a plain field.
type DefectDraft struct {
	FieldID     int64
	Index       int
	Title       string
	Description string
	Severity    domain.Severity
}

// Answer is the accepted value of one visible field.
type Answer struct {
	Field   Field
	Value   domain.FieldValue
	Defects []DefectDraft

	elements []map[string]interface{}
}

// Linked returns the value to store once the drafted defects have ids (in
// the order of Defects). Group elements that produced a defect carry its id
// under "auto_defect_id". The second return is the id linked on the response.
func (a Answer) Linked(ids []int64) (domain.FieldValue, *int64, error) {
	if len(ids) == 0 {
		return a.Value, nil, nil
	}
	first := ids[0]
	if a.Field.Type != domain.FieldRepeatingGroup {
		return a.Value, &first, nil
	}

	annotated := make([]map[string]interface{}, len(a.elements))
	for i, el := range a.elements {
		cp := make(map[string]interface{}, len(el)+1)
		for k, v := range el {
			cp[k] = v
		}
		annotated[i] = cp
	}
	for i, d := range a.Defects {
		if i >= len(ids) || d.Index < 1 || d.Index > len(annotated) {
			continue
		}
		el := annotated[d.Index-1]
		if _, ok := el["auto_defect_id"]; !ok {
			el["auto_defect_id"] = ids[i]
		}
	}
	raw, err := json.Marshal(annotated)
	if err != nil {
		return domain.FieldValue{}, nil, err
	}
	return domain.GroupValue(raw), &first, nil
}

// Relinked returns the value to store when the field's response is already
// linked to a defect. Group elements keep the "auto_defect_id" the stored
// element at the same position carried.
func (a Answer) Relinked(stored domain.FieldValue) (domain.FieldValue, error) {
	if a.Field.Type != domain.FieldRepeatingGroup {
		return a.Value, nil
	}
	raw, ok := stored.Group()
	if !ok {
		return a.Value, nil
	}
	var previous []map[string]interface{}
	if err := json.Unmarshal(raw, &previous); err != nil {
		return domain.FieldValue{}, err
	}

	annotated := make([]map[string]interface{}, len(a.elements))
	for i, el := range a.elements {
		cp := make(map[string]interface{}, len(el)+1)
		for k, v := range el {
			cp[k] = v
		}
		if i < len(previous) {
			if id, ok := previous[i]["auto_defect_id"]; ok {
				cp["auto_defect_id"] = id
			}
		}
		annotated[i] = cp
	}
	out, err := json.Marshal(annotated)
	if err != nil {
		return domain.FieldValue{}, err
	}
	return domain.GroupValue(out), nil
}

// Result is an accepted submission.
type Result struct {
	Answers []Answer
	Hidden  []int64
}

// Defects returns every drafted defect across answers.
func (r *Result) Defects() []DefectDraft {
	var out []DefectDraft
	for _, a := range r.Answers {
		out = append(out, a.Defects...)
	}
	return out
}

// rejections collects failures by kind; the first non-empty kind in
// precedence order is returned.
type rejections struct {
	typeMismatch map[string]string
	option       map[string]string
	repeatCount  map[string]string
	incomplete   map[string]string
}

func newRejections() *rejections {
	return &rejections{
		typeMismatch: map[string]string{},
		option:       map[string]string{},
		repeatCount:  map[string]string{},
		incomplete:   map[string]string{},
	}
}

func (r *rejections) err() error {
	switch {
	case len(r.typeMismatch) > 0:
		return apperrors.Rejection(apperrors.CodeTypeMismatch, r.typeMismatch)
	case len(r.option) > 0:
		return apperrors.Rejection(apperrors.CodeOptionNotPermitted, r.option)
	case len(r.repeatCount) > 0:
		return apperrors.Rejection(apperrors.CodeRepeatCountMismatch, r.repeatCount)
	case len(r.incomplete) > 0:
		return apperrors.Rejection(apperrors.CodeIncompleteSubmission, r.incomplete)
	}
	return nil
}

// Evaluate checks a submission against a task's fields. Fields are visited in
// order; a hidden field's response is ignored and its requiredness waived.
// Repeating groups take their size from the count field in this same
// submission. Nothing is written; the caller persists Result.
func Evaluate(fields []Field, sub Submission) (*Result, error) {
	known := make(map[int64]bool, len(fields))
	for _, f := range fields {
		known[f.ID] = true
	}

	submitted := make(map[int64]json.RawMessage, len(sub.Responses))
	invalid := map[string]string{}
	for _, in := range sub.Responses {
		key := fmt.Sprintf("field_%d", in.FieldID)
		switch {
		case !known[in.FieldID]:
			invalid[key] = "field does not belong to this task"
		case submitted[in.FieldID] != nil:
			invalid[key] = "field submitted more than once"
		default:
			v := in.Value
			if v == nil {
				v = json.RawMessage("null")
			}
			submitted[in.FieldID] = v
		}
	}
	if len(invalid) > 0 {
		return nil, apperrors.Validation(invalid)
	}

	rej := newRejections()
	res := &Result{}
	accepted := make(map[int64]domain.FieldValue, len(fields))

	for _, f := range Sorted(fields) {
		key := f.Key()

		if f.ShowIf != nil && !visible(*f.ShowIf, accepted) {
			res.Hidden = append(res.Hidden, f.ID)
			continue
		}

		raw := submitted[f.ID]
		if f.Type == domain.FieldRepeatingGroup {
			ans, ok := evaluateGroup(f, raw, accepted, rej)
			if ok {
				accepted[f.ID] = ans.Value
				res.Answers = append(res.Answers, ans)
			}
			continue
		}

		v, present := scalar(key, f.Type, f.Options, raw, rej)
		if !present {
			if f.Required {
				rej.incomplete[key] = "required"
			}
			continue
		}
		if v.IsZero() {
			continue
		}

		ans := Answer{Field: f, Value: v}
		if n, ok := v.Number(); ok {
			if d := checkDefect(f.Type, f.Rules, n, f.Label); d != nil {
				d.FieldID = f.ID
				ans.Defects = append(ans.Defects, *d)
			}
		}
		accepted[f.ID] = v
		res.Answers = append(res.Answers, ans)
	}

	if err := rej.err(); err != nil {
		return nil, err
	}
	return res, nil
}

// scalar decodes a non-group value. present is false when the value is
// missing; a zero FieldValue with present=true means it was rejected.
func scalar(key string, t domain.FieldType, options []string, raw json.RawMessage, rej *rejections) (domain.FieldValue, bool) {
	if isNull(raw) {
		return domain.FieldValue{}, false
	}

	switch t {
	case domain.FieldNumber, domain.FieldTemperature:
		var n float64
		if err := json.Unmarshal(raw, &n); err != nil {
			rej.typeMismatch[key] = "expected a number"
			return domain.FieldValue{}, true
		}
		return domain.NumberValue(n), true

	case domain.FieldText, domain.FieldDropdown, domain.FieldPhoto:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			rej.typeMismatch[key] = "expected a string"
			return domain.FieldValue{}, true
		}
		if strings.TrimSpace(s) == "" {
			return domain.FieldValue{}, false
		}
		switch t {
		case domain.FieldDropdown:
			for _, o := range options {
				if o == s {
					return domain.TextValue(s), true
				}
			}
			rej.option[key] = fmt.Sprintf("%q is not a permitted option", s)
			return domain.FieldValue{}, true
		case domain.FieldPhoto:
			return domain.FileValue(s), true
		}
		return domain.TextValue(s), true

	case domain.FieldYesNo:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			rej.typeMismatch[key] = "expected true or false"
			return domain.FieldValue{}, true
		}
		return domain.BoolValue(b), true
	}

	rej.typeMismatch[key] = fmt.Sprintf("unsupported field type %q", t)
	return domain.FieldValue{}, true
}

func evaluateGroup(f Field, raw json.RawMessage, accepted map[int64]domain.FieldValue, rej *rejections) (Answer, bool) {
	key := f.Key()

	if isNull(raw) {
		// A count of zero needs no entries; treat the omission as an empty list.
		if n, ok := repeatCount(f, accepted); !ok || n != 0 {
			if f.Required {
				rej.incomplete[key] = "required"
			}
			return Answer{}, false
		}
		raw = json.RawMessage("[]")
	}

	var elements []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &elements); err != nil {
		rej.typeMismatch[key] = "expected a list of objects"
		return Answer{}, false
	}

	n, ok := repeatCount(f, accepted)
	if !ok {
		rej.repeatCount[key] = "count field has no usable value"
		return Answer{}, false
	}
	if len(elements) != n {
		rej.repeatCount[key] = fmt.Sprintf("expected %d entries, got %d", n, len(elements))
		return Answer{}, false
	}

	label := f.Rules.RepeatLabel
	if label == "" {
		label = f.Label
	}

	ans := Answer{Field: f, elements: make([]map[string]interface{}, 0, len(elements))}
	failed := false
	for i, el := range elements {
		out := map[string]interface{}{}
		for _, sf := range f.Rules.Template {
			subKey := fmt.Sprintf("%s[%d].%s", key, i+1, sf.Key)
			v, present := scalar(subKey, sf.Type, sf.Options, el[sf.Key], rej)
			if !present {
				if sf.Required {
					rej.incomplete[subKey] = "required"
				}
				continue
			}
			if v.IsZero() {
				failed = true
				continue
			}
			out[sf.Key] = v.Interface()

			if num, ok := v.Number(); ok {
				subLabel := fmt.Sprintf("%s %d %s", label, i+1, sf.Label)
				if d := checkDefect(sf.Type, sf.Rules, num, subLabel); d != nil {
					d.FieldID = f.ID
					d.Index = i + 1
					ans.Defects = append(ans.Defects, *d)
				}
			}
		}
		ans.elements = append(ans.elements, out)
	}
	if failed {
		return Answer{}, false
	}

	b, err := json.Marshal(ans.elements)
	if err != nil {
		rej.typeMismatch[key] = err.Error()
		return Answer{}, false
	}
	ans.Value = domain.GroupValue(b)
	return ans, true
}

// repeatCount reads the group size from the already accepted count field.
func repeatCount(f Field, accepted map[int64]domain.FieldValue) (int, bool) {
	if f.Rules.RepeatCountFieldID == nil {
		return 0, false
	}
	v, ok := accepted[*f.Rules.RepeatCountFieldID]
	if !ok {
		return 0, false
	}
	n, ok := v.Number()
	if !ok || n < 0 || n != math.Trunc(n) || n > math.MaxInt32 {
		return 0, false
	}
	return int(n), true
}

// checkDefect applies create_defect_if to a numeric value.
func checkDefect(t domain.FieldType, r Rules, v float64, label string) *DefectDraft {
	c := r.CreateDefectIf
	if c == nil {
		return nil
	}

	unit := ""
	severity := domain.SeverityMedium
	if t == domain.FieldTemperature {
		unit = "°C"
		severity = domain.SeverityHigh
	}

	var title string
	switch {
	case c.OutOfRange && r.Max != nil && v > *r.Max:
		title = fmt.Sprintf("%s %s%s exceeded %s%s", label, strconvFloat(v), unit, strconvFloat(*r.Max), unit)
	case c.OutOfRange && r.Min != nil && v < *r.Min:
		title = fmt.Sprintf("%s %s%s below %s%s", label, strconvFloat(v), unit, strconvFloat(*r.Min), unit)
	case !c.OutOfRange && compareNumbers(c.Operator, v, c.Threshold):
		title = fmt.Sprintf("%s %s%s %s %s%s", label, strconvFloat(v), unit, thresholdWords[c.Operator], strconvFloat(c.Threshold), unit)
	default:
		return nil
	}

	return &DefectDraft{
		Title:       title,
		Description: fmt.Sprintf("Raised automatically from a checklist response: %s.", title),
		Severity:    severity,
	}
}

var thresholdWords = map[Operator]string{
	OpGt:  "exceeded",
	OpGte: "reached",
	OpLt:  "below",
	OpLte: "at or below",
	OpEq:  "equal to",
	OpNeq: "not equal to",
}

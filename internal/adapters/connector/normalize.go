package connector

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/okian/scout/internal/domain/model"
)

// Canonical field names a FieldMap can remap.
const (
	FieldID          = "id"
	FieldName        = "name"
	FieldAffiliation = "affiliation"
	FieldDiscipline  = "discipline"
	FieldEmail       = "email"
	FieldPhone       = "phone"
	FieldLinks       = "links"
	FieldMetrics     = "metrics"
	FieldBio         = "bio"
	FieldUpdatedAt   = "updated_at"
)

var (
	disciplineSplit = regexp.MustCompile(`[,/;&]+`)
	nonDigit        = regexp.MustCompile(`\D`)
	spaces          = regexp.MustCompile(`\s+`)

	// nativeNamespace scopes ids derived for records without a native id.
	nativeNamespace = uuid.MustParse("0b6d8f7e-51c2-4a8e-b0f4-7c3e1d9a2b65")
)

// FieldMap maps canonical field names to source keys. Nested keys use dots,
// e.g. "profile.full_name". Unmapped fields use their canonical name.
type FieldMap map[string]string

// Normalizer turns raw records into canonical attributes.
type Normalizer struct {
	fields FieldMap
}

// NewNormalizer creates a normalizer with the given field mapping.
func NewNormalizer(fields FieldMap) *Normalizer {
	m := make(FieldMap, len(fields))
	for k, v := range fields {
		if v != "" {
			m[k] = v
		}
	}
	return &Normalizer{fields: m}
}

func (n *Normalizer) key(field string) string {
	if k, ok := n.fields[field]; ok {
		return k
	}
	return field
}

// Lookup returns the raw value of a canonical field.
func (n *Normalizer) Lookup(raw RawRecord, field string) (any, bool) {
	var cur any = map[string]any(raw)
	for _, part := range strings.Split(n.key(field), ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			return nil, false
		}
	}
	return cur, cur != nil
}

// Normalize maps raw onto a CandidateRecord carrying NativeID and
// Attributes. A record without a native id gets one derived from its
// content, so the same payload always maps to the same record.
func (n *Normalizer) Normalize(raw RawRecord) (model.CandidateRecord, error) {
	name := cleanText(n.text(raw, FieldName))
	if name == "" {
		return model.CandidateRecord{}, ErrMissingName
	}
	attrs := model.Attributes{
		Name:        name,
		Affiliation: cleanText(n.text(raw, FieldAffiliation)),
		Discipline:  DisciplineTokens(n.list(raw, FieldDiscipline)),
		Email:       NormalizeEmail(n.text(raw, FieldEmail)),
		Phone:       NormalizePhone(n.text(raw, FieldPhone)),
		Links:       cleanList(n.list(raw, FieldLinks)),
		Bio:         cleanText(n.text(raw, FieldBio)),
	}
	metrics, err := n.metrics(raw)
	if err != nil {
		return model.CandidateRecord{}, err
	}
	attrs.Metrics = metrics

	native := strings.TrimSpace(n.text(raw, FieldID))
	if native == "" {
		native, err = contentID(raw)
		if err != nil {
			return model.CandidateRecord{}, err
		}
	}
	return model.CandidateRecord{NativeID: native, Attributes: attrs}, nil
}

func (n *Normalizer) text(raw RawRecord, field string) string {
	v, ok := n.Lookup(raw, field)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	default:
		return fmt.Sprint(t)
	}
}

func (n *Normalizer) list(raw RawRecord, field string) []string {
	v, ok := n.Lookup(raw, field)
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case string:
		return []string{t}
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if item != nil {
				out = append(out, fmt.Sprint(item))
			}
		}
		return out
	default:
		return []string{fmt.Sprint(t)}
	}
}

func (n *Normalizer) metrics(raw RawRecord) (map[string]float64, error) {
	v, ok := n.Lookup(raw, FieldMetrics)
	if !ok {
		return nil, nil
	}
	m, ok := asMap(v)
	if !ok {
		return nil, fmt.Errorf("metrics: expected an object, got %T", v)
	}
	out := make(map[string]float64, len(m))
	for k, raw := range m {
		switch t := raw.(type) {
		case float64:
			out[k] = t
		case int:
			out[k] = float64(t)
		case int64:
			out[k] = float64(t)
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
			if err != nil {
				return nil, fmt.Errorf("metrics.%s: %w", k, err)
			}
			out[k] = f
		default:
			return nil, fmt.Errorf("metrics.%s: unsupported value %T", k, raw)
		}
		if math.IsNaN(out[k]) || math.IsInf(out[k], 0) {
			return nil, fmt.Errorf("metrics.%s: %w", k, ErrNonFiniteMetric)
		}
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// DisciplineTokens splits discipline values on , / ; & and trims them.
func DisciplineTokens(values []string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, v := range values {
		for _, part := range disciplineSplit.Split(v, -1) {
			part = cleanText(part)
			key := strings.ToLower(part)
			if _, dup := seen[key]; part == "" || dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, part)
		}
	}
	return out
}

// NormalizePhone keeps digits only.
func NormalizePhone(phone string) string {
	return nonDigit.ReplaceAllString(phone, "")
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func cleanText(s string) string {
	return strings.TrimSpace(spaces.ReplaceAllString(s, " "))
}

func cleanList(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// contentID hashes the canonical JSON of raw. encoding/json sorts map keys.
func contentID(raw RawRecord) (string, error) {
	b, err := json.Marshal(stringKeys(map[string]any(raw)))
	if err != nil {
		return "", fmt.Errorf("hash record: %w", err)
	}
	return uuid.NewSHA1(nativeNamespace, b).String(), nil
}

// asMap accepts both JSON (map[string]any) and YAML (map[string]any after
// stringKeys) objects.
func asMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case RawRecord:
		return t, true
	case map[any]any:
		return stringKeys(t).(map[string]any), true
	default:
		return nil, false
	}
}

// stringKeys converts nested map[any]any values to map[string]any.
func stringKeys(v any) any {
	switch t := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = stringKeys(val)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = stringKeys(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = stringKeys(val)
		}
		return out
	default:
		return v
	}
}

package syncer

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/magangradar/platform/pkg/vacancy"
	"gorm.io/datatypes"
)

// The upstream serves naive local timestamps in Jakarta time.
const localUTCOffset = "+07:00"

// Normalizer converts one raw upstream item into the canonical vacancy
// record. Every field resolves through the ordered candidate keys of the
// FieldMap; fields whose candidates all fail stay null.
type Normalizer struct {
	fields FieldMap
}

func NewNormalizer(fields FieldMap) *Normalizer {
	return &Normalizer{fields: fields}
}

// Normalize returns nil when the item carries no usable identifier; such
// items are skipped by the orchestrators.
func (n *Normalizer) Normalize(row map[string]interface{}) *vacancy.Vacancy {
	id := firstString(row, n.fields.ID)
	if id == nil || *id == "" {
		return nil
	}

	var raw datatypes.JSON
	if encoded, err := json.Marshal(row); err == nil {
		raw = datatypes.JSON(encoded)
	}

	return &vacancy.Vacancy{
		ID:                   *id,
		Title:                firstString(row, n.fields.Title),
		Description:          firstString(row, n.fields.Description),
		Quota:                firstInt(row, n.fields.Quota),
		RegisteredCount:      firstInt(row, n.fields.RegisteredCount),
		FieldsOfStudy:        datatypes.JSONSlice[string](firstList(row, n.fields.FieldsOfStudy)),
		Levels:               datatypes.JSONSlice[string](firstList(row, n.fields.Levels)),
		CompanyName:          firstString(row, n.fields.CompanyName),
		ProvinceCode:         firstString(row, n.fields.ProvinceCode),
		ProvinceName:         firstString(row, n.fields.ProvinceName),
		RegencyCode:          firstString(row, n.fields.RegencyCode),
		RegencyName:          firstString(row, n.fields.RegencyName),
		RegistrationOpensAt:  firstDate(row, n.fields.RegistrationOpensAt),
		RegistrationClosesAt: firstDate(row, n.fields.RegistrationClosesAt),
		StartsAt:             firstDate(row, n.fields.StartsAt),
		EndsAt:               firstDate(row, n.fields.EndsAt),
		Agency:               firstString(row, n.fields.Agency),
		SubAgency:            firstString(row, n.fields.SubAgency),
		SourceCreatedAt:      firstDate(row, n.fields.SourceCreatedAt),
		SourceUpdatedAt:      firstDate(row, n.fields.SourceUpdatedAt),
		RawPayload:           raw,
	}
}

// lookup walks a dotted candidate path through nested objects.
func lookup(row map[string]interface{}, path string) interface{} {
	parts := strings.Split(path, ".")
	var current interface{} = row
	for _, part := range parts {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		current = obj[part]
	}
	return current
}

func firstString(row map[string]interface{}, candidates []string) *string {
	for _, key := range candidates {
		if s := stringify(lookup(row, key)); s != "" {
			return &s
		}
	}
	return nil
}

func firstInt(row map[string]interface{}, candidates []string) *int {
	for _, key := range candidates {
		switch val := lookup(row, key).(type) {
		case float64:
			if math.IsNaN(val) || math.IsInf(val, 0) {
				continue
			}
			n := int(val)
			return &n
		case string:
			trimmed := strings.TrimSpace(val)
			if trimmed == "" {
				continue
			}
			var parsed float64
			if _, err := fmt.Sscanf(trimmed, "%g", &parsed); err == nil {
				n := int(parsed)
				return &n
			}
		}
	}
	return nil
}

func firstList(row map[string]interface{}, candidates []string) []string {
	for _, key := range candidates {
		if list := parseStringList(lookup(row, key)); len(list) > 0 {
			return list
		}
	}
	return []string{}
}

func firstDate(row map[string]interface{}, candidates []string) *time.Time {
	for _, key := range candidates {
		if parsed := parseLocalDate(lookup(row, key)); parsed != nil {
			return parsed
		}
	}
	return nil
}

// parseStringList accepts a real list, a JSON-encoded list, a JSON-encoded
// single string, or a comma-separated string, in that order.
func parseStringList(value interface{}) []string {
	switch val := value.(type) {
	case []interface{}:
		return stringifyEntries(val)
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" {
			return nil
		}
		var decoded interface{}
		if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
			switch d := decoded.(type) {
			case []interface{}:
				return stringifyEntries(d)
			case string:
				return []string{d}
			}
			return nil
		}
		var out []string
		for _, entry := range strings.Split(trimmed, ",") {
			if e := strings.TrimSpace(entry); e != "" {
				out = append(out, e)
			}
		}
		return out
	}
	return nil
}

func stringifyEntries(entries []interface{}) []string {
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		if s := stringifyEntry(entry); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// stringifyEntry flattens a list element: plain strings are trimmed and
// known object wrappers contribute their display key.
func stringifyEntry(entry interface{}) string {
	switch val := entry.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case map[string]interface{}:
		for _, key := range []string{"nama", "program_studi", "title"} {
			if nested, ok := val[key]; ok {
				return stringify(nested)
			}
		}
		return ""
	default:
		return stringify(entry)
	}
}

func stringify(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case float64:
		if val == math.Trunc(val) && !math.IsInf(val, 0) {
			return fmt.Sprintf("%.0f", val)
		}
		return fmt.Sprintf("%g", val)
	case bool:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

// parseLocalDate treats a space-separated datetime as ISO-local and pins
// zone-less values to UTC+7. Invalid candidates yield nil so the caller can
// try the next one.
func parseLocalDate(value interface{}) *time.Time {
	str, ok := value.(string)
	if !ok {
		return nil
	}
	str = strings.TrimSpace(str)
	if str == "" {
		return nil
	}

	normalized := strings.Replace(str, " ", "T", 1)
	if !strings.Contains(normalized, "T") {
		normalized += "T00:00:00"
	}
	if !hasExplicitZone(normalized) {
		normalized += localUTCOffset
	}

	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04Z07:00"} {
		if parsed, err := time.Parse(layout, normalized); err == nil {
			return &parsed
		}
	}
	return nil
}

func hasExplicitZone(s string) bool {
	if strings.HasSuffix(s, "Z") {
		return true
	}
	idx := strings.IndexByte(s, 'T')
	if idx < 0 {
		return false
	}
	rest := s[idx+1:]
	return strings.ContainsAny(rest, "+") || strings.Contains(rest, "-")
}

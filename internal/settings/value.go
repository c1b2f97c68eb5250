package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/locallm/internal/apperr"
	"github.com/zulandar/locallm/internal/models"
)

var (
	// ErrInvalidValue is returned when a raw value cannot be coerced to its
	// declared value type.
	ErrInvalidValue = fmt.Errorf("invalid setting value: %w", apperr.ErrValidation)

	// ErrUnsupportedValueType is returned for a value type tag with no
	// coercion rule.
	ErrUnsupportedValueType = fmt.Errorf("unsupported setting value type: %w", apperr.ErrValidation)
)

// Canonical layouts for temporal values. Stored values carry no zone and
// are interpreted as UTC.
const (
	DatetimeLayout = "2006-01-02T15:04:05.999999999"
	DateLayout     = "2006-01-02"
	TimeLayout     = "15:04:05.999999999"
)

var datetimeLayouts = []string{
	time.RFC3339Nano,
	DatetimeLayout,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	DateLayout,
}

var timeLayouts = []string{
	TimeLayout,
	"15:04:05.999999999Z07:00",
	"15:04",
	"15:04Z07:00",
}

var trueStrings = map[string]bool{"true": true, "1": true, "yes": true, "on": true}

// ValidateAndConvert coerces raw into the in-memory form for vt:
//
//	string, enum, url  string
//	integer            int64
//	float              float64
//	boolean            bool
//	json               any decoded JSON value
//	array              []any
//	object             map[string]any
//	datetime           time.Time in UTC
//	date               time.Time at UTC midnight
//	time               time.Time on 0000-01-01 UTC
//	uuid               uuid.UUID
//
// It has no side effects. Callers apply it before persisting and again when
// reading a stored string back.
func ValidateAndConvert(raw any, vt models.ValueType) (any, error) {
	switch vt {
	case models.TypeString:
		return toString(raw), nil
	case models.TypeInteger:
		return toInteger(raw)
	case models.TypeFloat:
		return toFloat(raw)
	case models.TypeBoolean:
		return toBoolean(raw), nil
	case models.TypeJSON:
		return toJSON(raw)
	case models.TypeArray:
		return toArray(raw)
	case models.TypeObject:
		return toObject(raw)
	case models.TypeDatetime:
		return toDatetime(raw)
	case models.TypeDate:
		return toDate(raw)
	case models.TypeTime:
		return toTimeOfDay(raw)
	case models.TypeURL:
		return toURL(raw)
	case models.TypeUUID:
		return toUUID(raw)
	case models.TypeEnum:
		return toString(raw), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedValueType, vt)
	}
}

// Serialize renders a value already produced by ValidateAndConvert as the
// canonical string stored in the value column.
func Serialize(v any, vt models.ValueType) (string, error) {
	switch vt {
	case models.TypeString, models.TypeEnum, models.TypeURL:
		return toString(v), nil
	case models.TypeInteger:
		n, err := toInteger(v)
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(n, 10), nil
	case models.TypeFloat:
		f, err := toFloat(v)
		if err != nil {
			return "", err
		}
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	case models.TypeBoolean:
		return strconv.FormatBool(toBoolean(v)), nil
	case models.TypeJSON, models.TypeArray, models.TypeObject:
		data, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrInvalidValue, vt, err)
		}
		return string(data), nil
	case models.TypeDatetime:
		t, err := toDatetime(v)
		if err != nil {
			return "", err
		}
		return t.Format(DatetimeLayout), nil
	case models.TypeDate:
		t, err := toDate(v)
		if err != nil {
			return "", err
		}
		return t.Format(DateLayout), nil
	case models.TypeTime:
		t, err := toTimeOfDay(v)
		if err != nil {
			return "", err
		}
		return t.Format(TimeLayout), nil
	case models.TypeUUID:
		u, err := toUUID(v)
		if err != nil {
			return "", err
		}
		return u.String(), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedValueType, vt)
	}
}

// Canonicalize validates raw against vt and returns its stored string form.
func Canonicalize(raw any, vt models.ValueType) (string, error) {
	v, err := ValidateAndConvert(raw, vt)
	if err != nil {
		return "", err
	}
	return Serialize(v, vt)
}

func invalid(vt models.ValueType, raw any, reason string) error {
	return fmt.Errorf("%w: %s value %s: %s", ErrInvalidValue, vt, describe(raw), reason)
}

func describe(raw any) string {
	if s, ok := raw.(string); ok {
		return strconv.Quote(s)
	}
	return fmt.Sprintf("%v (%T)", raw, raw)
}

func toString(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func toInteger(raw any) (int64, error) {
	switch v := raw.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint:
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, invalid(models.TypeInteger, raw, "out of range")
		}
		return int64(v), nil
	case float32:
		return floatToInteger(float64(v), raw)
	case float64:
		return floatToInteger(v, raw)
	case json.Number:
		return toInteger(string(v))
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, invalid(models.TypeInteger, raw, "not an integer")
		}
		return n, nil
	default:
		return 0, invalid(models.TypeInteger, raw, "not an integer")
	}
}

func floatToInteger(f float64, raw any) (int64, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, invalid(models.TypeInteger, raw, "has a fractional part")
	}
	if f > math.MaxInt64 || f < math.MinInt64 {
		return 0, invalid(models.TypeInteger, raw, "out of range")
	}
	return int64(f), nil
}

func toFloat(raw any) (float64, error) {
	var f float64
	switch v := raw.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		n, err := toInteger(v)
		if err != nil {
			return 0, err
		}
		f = float64(n)
	case json.Number:
		return toFloat(string(v))
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, invalid(models.TypeFloat, raw, "not a number")
		}
		f = parsed
	default:
		return 0, invalid(models.TypeFloat, raw, "not a number")
	}
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, invalid(models.TypeFloat, raw, "not a finite number")
	}
	return f, nil
}

// toBoolean never fails: strings match the true set case-insensitively and
// everything else follows truthiness.
func toBoolean(raw any) bool {
	switch v := raw.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return trueStrings[strings.ToLower(strings.TrimSpace(v))]
	case json.Number:
		f, err := v.Float64()
		return err == nil && f != 0
	}
	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}

func decodeJSON(vt models.ValueType, raw any) (any, bool, error) {
	var data []byte
	switch v := raw.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		return nil, false, nil
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, true, invalid(vt, raw, "malformed JSON: "+err.Error())
	}
	return out, true, nil
}

func toJSON(raw any) (any, error) {
	if v, ok, err := decodeJSON(models.TypeJSON, raw); ok {
		return v, err
	}
	switch v := raw.(type) {
	case map[string]any, []any:
		return v, nil
	}
	if v, ok, err := fromNative(models.TypeJSON, raw); ok {
		return v, err
	}
	return nil, invalid(models.TypeJSON, raw, "expected a JSON string, mapping, or sequence")
}

// fromNative converts a typed Go map, slice or array to its generic JSON
// form (map[string]any or []any). Other values report ok=false.
func fromNative(vt models.ValueType, raw any) (any, bool, error) {
	if raw == nil {
		return nil, false, nil
	}
	switch reflect.ValueOf(raw).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
	default:
		return nil, false, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, true, invalid(vt, raw, "not JSON-encodable: "+err.Error())
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, true, invalid(vt, raw, "not JSON-encodable: "+err.Error())
	}
	return out, true, nil
}

func toArray(raw any) ([]any, error) {
	v, ok, err := decodeJSON(models.TypeArray, raw)
	if err != nil {
		return nil, err
	}
	if !ok {
		v = raw
		if _, isArr := v.([]any); !isArr {
			if native, ok, err := fromNative(models.TypeArray, raw); ok {
				if err != nil {
					return nil, err
				}
				v = native
			}
		}
	}
	arr, isArr := v.([]any)
	if !isArr {
		return nil, invalid(models.TypeArray, raw, "expected a JSON array")
	}
	return arr, nil
}

func toObject(raw any) (map[string]any, error) {
	v, ok, err := decodeJSON(models.TypeObject, raw)
	if err != nil {
		return nil, err
	}
	if !ok {
		v = raw
		if _, isObj := v.(map[string]any); !isObj {
			if native, ok, err := fromNative(models.TypeObject, raw); ok {
				if err != nil {
					return nil, err
				}
				v = native
			}
		}
	}
	obj, isObj := v.(map[string]any)
	if !isObj {
		return nil, invalid(models.TypeObject, raw, "expected a JSON object")
	}
	return obj, nil
}

// naiveUTC converts t to UTC and drops the location so values compare equal
// after a round trip through storage.
func naiveUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), u.Hour(), u.Minute(), u.Second(), u.Nanosecond(), time.UTC)
}

func parseLayouts(s string, layouts []string) (time.Time, error) {
	var firstErr error
	for _, layout := range layouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

func toDatetime(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return naiveUTC(v), nil
	case string:
		t, err := parseLayouts(strings.TrimSpace(v), datetimeLayouts)
		if err != nil {
			return time.Time{}, invalid(models.TypeDatetime, raw, "not an ISO-8601 datetime")
		}
		return naiveUTC(t), nil
	}
	return time.Time{}, invalid(models.TypeDatetime, raw, "not an ISO-8601 datetime")
}

func toDate(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		u := v.UTC()
		return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC), nil
	case string:
		t, err := time.Parse(DateLayout, strings.TrimSpace(v))
		if err != nil {
			return time.Time{}, invalid(models.TypeDate, raw, "not an ISO-8601 date")
		}
		return t, nil
	}
	return time.Time{}, invalid(models.TypeDate, raw, "not an ISO-8601 date")
}

func toTimeOfDay(raw any) (time.Time, error) {
	var t time.Time
	switch v := raw.(type) {
	case time.Time:
		t = v.UTC()
	case string:
		parsed, err := parseLayouts(strings.TrimSpace(v), timeLayouts)
		if err != nil {
			return time.Time{}, invalid(models.TypeTime, raw, "not an ISO-8601 time")
		}
		t = parsed.UTC()
	default:
		return time.Time{}, invalid(models.TypeTime, raw, "not an ISO-8601 time")
	}
	return time.Date(0, 1, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC), nil
}

func toURL(raw any) (string, error) {
	s := toString(raw)
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", invalid(models.TypeURL, raw, "URL needs a scheme and a host")
	}
	return s, nil
}

func toUUID(raw any) (uuid.UUID, error) {
	switch v := raw.(type) {
	case uuid.UUID:
		return v, nil
	case [16]byte:
		return uuid.UUID(v), nil
	}
	u, err := uuid.Parse(strings.TrimSpace(toString(raw)))
	if err != nil {
		return uuid.Nil, invalid(models.TypeUUID, raw, "malformed UUID")
	}
	return u, nil
}

// IsUnsupported reports whether err came from an unknown value type tag.
func IsUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupportedValueType)
}

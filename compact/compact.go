// Package compact implements the single-line pipe-delimited encoding used as
// the contract between the pipeline and the text-completion providers. It is
// deliberately lenient on decode because the encoding comes back embedded in
// free-text model output.
package compact

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Record is an insertion-ordered mapping of string keys to scalar values.
// Supported value types: string, bool, int64, float64, []string, and a
// one-level nested *Record. Anything else is rendered via its string form.
type Record struct {
	keys []string
	vals map[string]any
}

func NewRecord() *Record {
	return &Record{vals: map[string]any{}}
}

// Set stores a value under key, preserving first-insertion order.
func (r *Record) Set(key string, v any) {
	if _, ok := r.vals[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.vals[key] = v
}

func (r *Record) Get(key string) (any, bool) {
	v, ok := r.vals[key]
	return v, ok
}

// Keys returns keys in insertion order.
func (r *Record) Keys() []string {
	return append([]string(nil), r.keys...)
}

func (r *Record) Len() int { return len(r.keys) }

// String returns the value under key rendered as a string, or "" when the
// key is absent. Booleans render lowercase, numbers in canonical decimal.
func (r *Record) String(key string) string {
	v, ok := r.vals[key]
	if !ok {
		return ""
	}
	return scalarString(v)
}

// Bool returns true when the value under key is boolean true or the string
// "true" in any case. Absent keys and everything else are false.
func (r *Record) Bool(key string) bool {
	v, ok := r.vals[key]
	if !ok {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.EqualFold(strings.TrimSpace(t), "true")
	default:
		return false
	}
}

// Sub returns the nested record under key, if any.
func (r *Record) Sub(key string) (*Record, bool) {
	v, ok := r.vals[key]
	if !ok {
		return nil, false
	}
	sub, ok := v.(*Record)
	return sub, ok
}

var numberPattern = regexp.MustCompile(`^-?[0-9]+(\.[0-9]+)?$`)

// Encode renders the record as a single pipe-delimited line. Values
// containing the delimiter characters |, :, ., comma, or brackets will
// corrupt the encoding; the format is only meant for short structured
// fields.
func Encode(r *Record) string {
	if r == nil {
		return ""
	}
	pairs := make([]string, 0, len(r.keys))
	for _, key := range r.keys {
		switch v := r.vals[key].(type) {
		case *Record:
			// Flatten one level only. Deeper nesting is undefined.
			for _, sub := range v.keys {
				pairs = append(pairs, key+"."+sub+":"+scalarString(v.vals[sub]))
			}
		case []string:
			pairs = append(pairs, key+":["+strings.Join(v, ",")+"]")
		default:
			pairs = append(pairs, key+":"+scalarString(v))
		}
	}
	return strings.Join(pairs, "|")
}

// Decode parses a compact line into a record. It never fails: pairs without
// a colon are dropped, a malformed pair never aborts the rest, and
// unparseable input simply yields an empty or partial record.
func Decode(s string) *Record {
	out := NewRecord()
	for _, pair := range strings.Split(strings.TrimSpace(s), "|") {
		idx := strings.Index(pair, ":")
		if idx < 0 {
			continue
		}
		// Split on the first colon only; values may contain colons.
		key := strings.TrimSpace(pair[:idx])
		value := strings.TrimSpace(pair[idx+1:])
		if key == "" {
			continue
		}
		if dot := strings.Index(key, "."); dot >= 0 {
			outer := strings.TrimSpace(key[:dot])
			inner := strings.TrimSpace(key[dot+1:])
			if outer == "" || inner == "" {
				continue
			}
			sub, ok := out.Sub(outer)
			if !ok {
				sub = NewRecord()
				out.Set(outer, sub)
			}
			sub.Set(inner, coerce(value))
			continue
		}
		out.Set(key, coerce(value))
	}
	return out
}

// coerce applies the one-pass scalar coercion rules. List items are not
// re-coerced; they stay strings.
func coerce(value string) any {
	switch {
	case strings.EqualFold(value, "true"):
		return true
	case strings.EqualFold(value, "false"):
		return false
	case numberPattern.MatchString(value):
		if strings.Contains(value, ".") {
			f, err := strconv.ParseFloat(value, 64)
			if err == nil {
				return f
			}
			return value
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			return n
		}
		return value
	case len(value) >= 2 && strings.HasPrefix(value, "[") && strings.HasSuffix(value, "]"):
		items := []string{}
		for _, item := range strings.Split(value[1:len(value)-1], ",") {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			items = append(items, item)
		}
		return items
	default:
		return value
	}
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case []string:
		return "[" + strings.Join(t, ",") + "]"
	default:
		return fmt.Sprintf("%v", t)
	}
}

package flow

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// Caps describes the format of data accepted or produced by a pad.
// Zero value is empty caps which intersect with nothing.
type Caps struct {
	any        bool
	structures []Structure
}

// Structure is a single media type with its fields. Field values are
// fixed values of type int, float64, bool or string, or List or IntRange.
type Structure struct {
	Name   string
	Fields map[string]interface{}
}

// List is a set of alternative fixed values.
type List []interface{}

// IntRange is an inclusive range of integer values.
type IntRange struct {
	Min, Max int
}

// Any returns caps compatible with everything.
func Any() Caps {
	return Caps{any: true}
}

// NewCaps returns caps with provided structures.
func NewCaps(structures ...Structure) Caps {
	return Caps{structures: structures}
}

// NewStructure returns structure with fields defined as key-value pairs.
func NewStructure(name string, kv ...interface{}) Structure {
	s := Structure{Name: name, Fields: make(map[string]interface{}, len(kv)/2)}
	for i := 0; i+1 < len(kv); i += 2 {
		s.Fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return s
}

// IsAny returns true if caps are compatible with everything.
func (c Caps) IsAny() bool {
	return c.any
}

// IsEmpty returns true if caps are compatible with nothing.
func (c Caps) IsEmpty() bool {
	return !c.any && len(c.structures) == 0
}

// Structures returns structures of caps.
func (c Caps) Structures() []Structure {
	return c.structures
}

// Intersect returns caps which are accepted by both c and o.
func (c Caps) Intersect(o Caps) Caps {
	switch {
	case c.any:
		return o
	case o.any:
		return c
	}
	var result Caps
	for _, a := range c.structures {
		for _, b := range o.structures {
			if s, ok := a.intersect(b); ok {
				result.structures = append(result.structures, s)
			}
		}
	}
	return result
}

// CanIntersect returns true if intersection of caps is not empty.
func (c Caps) CanIntersect(o Caps) bool {
	return !c.Intersect(o).IsEmpty()
}

func (c Caps) String() string {
	if c.any {
		return "ANY"
	}
	if len(c.structures) == 0 {
		return "EMPTY"
	}
	return strings.Join(lo.Map(c.structures, func(s Structure, _ int) string {
		return s.String()
	}), "; ")
}

func (s Structure) intersect(o Structure) (Structure, bool) {
	if s.Name != o.Name {
		return Structure{}, false
	}
	result := Structure{Name: s.Name, Fields: make(map[string]interface{}, len(s.Fields))}
	for k, v := range s.Fields {
		result.Fields[k] = v
	}
	for k, ov := range o.Fields {
		v, ok := result.Fields[k]
		if !ok {
			result.Fields[k] = ov
			continue
		}
		r, ok := intersectValue(v, ov)
		if !ok {
			return Structure{}, false
		}
		result.Fields[k] = r
	}
	return result, true
}

func (s Structure) String() string {
	keys := make([]string, 0, len(s.Fields))
	for k := range s.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(s.Name)
	for _, k := range keys {
		fmt.Fprintf(&b, ", %s=%s", k, formatValue(s.Fields[k]))
	}
	return b.String()
}

func intersectValue(a, b interface{}) (interface{}, bool) {
	switch av := a.(type) {
	case List:
		return intersectList(av, b)
	case IntRange:
		switch bv := b.(type) {
		case List:
			return intersectList(bv, av)
		case IntRange:
			low, high := max(av.Min, bv.Min), min(av.Max, bv.Max)
			switch {
			case low > high:
				return nil, false
			case low == high:
				return low, true
			}
			return IntRange{Min: low, Max: high}, true
		case int:
			return bv, bv >= av.Min && bv <= av.Max
		}
		return nil, false
	}
	switch b.(type) {
	case List, IntRange:
		return intersectValue(b, a)
	}
	return a, equal(a, b)
}

// equal compares fixed values. Values of types without == are compared
// deeply.
func equal(a, b interface{}) bool {
	if reflect.TypeOf(a) != reflect.TypeOf(b) {
		return false
	}
	if a == nil || reflect.ValueOf(a).Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

func intersectList(l List, other interface{}) (interface{}, bool) {
	var result List
	for _, v := range l {
		if r, ok := intersectValue(v, other); ok && !lo.ContainsBy(result, func(v interface{}) bool { return equal(v, r) }) {
			result = append(result, r)
		}
	}
	switch len(result) {
	case 0:
		return nil, false
	case 1:
		return result[0], true
	}
	return result, true
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case List:
		return "{ " + strings.Join(lo.Map(val, func(item interface{}, _ int) string {
			return formatValue(item)
		}), ", ") + " }"
	case IntRange:
		return fmt.Sprintf("[ %d, %d ]", val.Min, val.Max)
	case string:
		if strings.ContainsAny(val, " ,;=[]{}\"") {
			return strconv.Quote(val)
		}
		return val
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	}
	return fmt.Sprint(v)
}

// MustParseCaps is like ParseCaps but panics if caps cannot be parsed.
func MustParseCaps(s string) Caps {
	c, err := ParseCaps(s)
	if err != nil {
		panic(err)
	}
	return c
}

// ParseCaps parses caps from string representation:
//
//	audio/x-raw, rate=44100, channels=[ 1, 2 ]; audio/x-wav
//
// Ranges are defined with square brackets, lists with curly braces.
// ANY and EMPTY are reserved words.
func ParseCaps(s string) (Caps, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "ANY":
		return Any(), nil
	case "", "EMPTY":
		return Caps{}, nil
	}
	var c Caps
	for _, part := range splitTop(s, ';') {
		if strings.TrimSpace(part) == "" {
			continue
		}
		st, err := parseStructure(part)
		if err != nil {
			return Caps{}, err
		}
		c.structures = append(c.structures, st)
	}
	return c, nil
}

func parseStructure(s string) (Structure, error) {
	parts := splitTop(s, ',')
	name := strings.TrimSpace(parts[0])
	if name == "" || strings.Contains(name, "=") {
		return Structure{}, fmt.Errorf("caps %q: missing media type", s)
	}
	st := Structure{Name: name, Fields: make(map[string]interface{}, len(parts)-1)}
	for _, f := range parts[1:] {
		kv := strings.SplitN(f, "=", 2)
		if len(kv) != 2 {
			return Structure{}, fmt.Errorf("caps %q: invalid field %q", s, f)
		}
		v, err := parseValue(kv[1])
		if err != nil {
			return Structure{}, fmt.Errorf("caps %q: field %q: %w", s, kv[0], err)
		}
		st.Fields[strings.TrimSpace(kv[0])] = v
	}
	return st, nil
}

func parseValue(s string) (interface{}, error) {
	s = strings.TrimSpace(s)
	// type hints are not needed, values carry their types.
	if strings.HasPrefix(s, "(") {
		if i := strings.Index(s, ")"); i > 0 {
			s = strings.TrimSpace(s[i+1:])
		}
	}
	switch {
	case s == "":
		return nil, fmt.Errorf("empty value")
	case strings.HasPrefix(s, "["):
		if !strings.HasSuffix(s, "]") {
			return nil, fmt.Errorf("unterminated range %q", s)
		}
		bounds := strings.Split(s[1:len(s)-1], ",")
		if len(bounds) != 2 {
			return nil, fmt.Errorf("invalid range %q", s)
		}
		low, err := strconv.Atoi(strings.TrimSpace(bounds[0]))
		if err != nil {
			return nil, err
		}
		high, err := strconv.Atoi(strings.TrimSpace(bounds[1]))
		if err != nil {
			return nil, err
		}
		if low > high {
			return nil, fmt.Errorf("invalid range %q", s)
		}
		return IntRange{Min: low, Max: high}, nil
	case strings.HasPrefix(s, "{"):
		if !strings.HasSuffix(s, "}") {
			return nil, fmt.Errorf("unterminated list %q", s)
		}
		var l List
		for _, item := range splitTop(s[1:len(s)-1], ',') {
			v, err := parseValue(item)
			if err != nil {
				return nil, err
			}
			l = append(l, v)
		}
		return l, nil
	case strings.HasPrefix(s, `"`):
		return strconv.Unquote(s)
	}
	if i, err := strconv.Atoi(s); err == nil {
		return i, nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, nil
	}
	if b, err := strconv.ParseBool(s); err == nil && (s == "true" || s == "false") {
		return b, nil
	}
	return s, nil
}

// splitTop splits string by separator ignoring separators inside of
// brackets and quotes.
func splitTop(s string, sep rune) []string {
	var (
		parts  []string
		depth  int
		quoted bool
		start  int
	)
	for i, r := range s {
		switch {
		case r == '"':
			quoted = !quoted
		case quoted:
		case r == '[' || r == '{':
			depth++
		case r == ']' || r == '}':
			depth--
		case r == sep && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

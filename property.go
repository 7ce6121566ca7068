package flow

import (
	"fmt"
	"sort"

	"github.com/spf13/cast"
)

// Kind is the declared type of property value.
type Kind int

// Kinds of property values.
const (
	KindBool Kind = iota
	KindInt
	KindInt64
	KindUint64
	KindFloat
	KindString
	KindDuration
	KindCaps
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindInt64:
		return "int64"
	case KindUint64:
		return "uint64"
	case KindFloat:
		return "float64"
	case KindString:
		return "string"
	case KindDuration:
		return "duration"
	case KindCaps:
		return "caps"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Property declares a typed property of element type.
type Property struct {
	Name     string
	Blurb    string
	Kind     Kind
	Default  interface{}
	Readonly bool
}

// convert coerces value to the declared kind.
func (p Property) convert(v interface{}) (interface{}, error) {
	var (
		result interface{}
		err    error
	)
	switch p.Kind {
	case KindBool:
		result, err = cast.ToBoolE(v)
	case KindInt:
		result, err = cast.ToIntE(v)
	case KindInt64:
		result, err = cast.ToInt64E(v)
	case KindUint64:
		result, err = cast.ToUint64E(v)
	case KindFloat:
		result, err = cast.ToFloat64E(v)
	case KindString:
		result, err = cast.ToStringE(v)
	case KindDuration:
		result, err = cast.ToDurationE(v)
	case KindCaps:
		switch c := v.(type) {
		case Caps:
			result = c
		case string:
			result, err = ParseCaps(c)
		default:
			err = fmt.Errorf("unable to cast %#v of type %T to caps", v, v)
		}
	default:
		err = fmt.Errorf("unsupported kind %v", p.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("property %q of kind %v: %v: %w", p.Name, p.Kind, err, ErrTypeMismatch)
	}
	return result, nil
}

// nameProperty is defined for every element.
var nameProperty = Property{
	Name:  "name",
	Blurb: "The name of the object",
	Kind:  KindString,
}

// properties is a typed registry of element property values.
type properties struct {
	specs  map[string]Property
	values map[string]interface{}
}

func newProperties(specs []Property) (properties, error) {
	p := properties{
		specs:  make(map[string]Property, len(specs)),
		values: make(map[string]interface{}, len(specs)),
	}
	for _, spec := range specs {
		if _, ok := p.specs[spec.Name]; ok || spec.Name == nameProperty.Name {
			return properties{}, fmt.Errorf("property %q: %w", spec.Name, ErrDuplicateName)
		}
		p.specs[spec.Name] = spec
		if spec.Default == nil {
			continue
		}
		v, err := spec.convert(spec.Default)
		if err != nil {
			return properties{}, fmt.Errorf("default value: %w", err)
		}
		p.values[spec.Name] = v
	}
	return p, nil
}

// SetProperty sets the value of property. Value is converted to the
// declared kind of property. Element emits notify signal and deep_notify
// is emitted by element and all its ancestors.
func (e *Element) SetProperty(name string, value interface{}) error {
	if name == nameProperty.Name {
		return e.rename(value)
	}
	spec, ok := e.props.specs[name]
	if !ok {
		return fmt.Errorf("%v: %q: %w", e, name, ErrUnknownProperty)
	}
	if spec.Readonly {
		return fmt.Errorf("%v: %q: %w", e, name, ErrReadonlyProperty)
	}
	v, err := spec.convert(value)
	if err != nil {
		return fmt.Errorf("%v: %w", e, err)
	}
	e.props.values[name] = v
	return e.notify(name)
}

// UpdateProperty sets the value of property regardless of read-only flag.
// Behaviours use it to expose their state.
func (e *Element) UpdateProperty(name string, value interface{}) error {
	spec, ok := e.props.specs[name]
	if !ok {
		return fmt.Errorf("%v: %q: %w", e, name, ErrUnknownProperty)
	}
	v, err := spec.convert(value)
	if err != nil {
		return fmt.Errorf("%v: %w", e, err)
	}
	e.props.values[name] = v
	return e.notify(name)
}

// Property returns the value of property.
func (e *Element) Property(name string) (interface{}, error) {
	if name == nameProperty.Name {
		return e.name, nil
	}
	if _, ok := e.props.specs[name]; !ok {
		return nil, fmt.Errorf("%v: %q: %w", e, name, ErrUnknownProperty)
	}
	return e.props.values[name], nil
}

// Properties returns declared properties of element sorted by name.
func (e *Element) Properties() []Property {
	specs := make([]Property, 0, len(e.props.specs)+1)
	specs = append(specs, nameProperty)
	for _, spec := range e.props.specs {
		specs = append(specs, spec)
	}
	sort.Slice(specs, func(i, j int) bool {
		return specs[i].Name < specs[j].Name
	})
	return specs
}

// Value returns typed value of element property. Zero value is returned
// if property is not defined or has a different type.
func Value[T any](e *Element, name string) T {
	v, _ := e.Property(name)
	t, _ := v.(T)
	return t
}

func (e *Element) rename(value interface{}) error {
	name, err := nameProperty.convert(value)
	if err != nil {
		return err
	}
	if e.Parent() != nil {
		return fmt.Errorf("%v: rename while in bin: %w", e, ErrReadonlyProperty)
	}
	e.name = name.(string)
	return e.notify(nameProperty.Name)
}

func (e *Element) notify(name string) error {
	if err := e.Emit(SignalNotify, name); err != nil {
		return err
	}
	for ancestor := e; ancestor != nil; ancestor = ancestor.parentElement() {
		if err := e.emitOn(ancestor, SignalDeepNotify, e, name); err != nil {
			return err
		}
	}
	return nil
}

package schema

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
)

// ErrUnknownType is returned for Go types that are neither built in nor
// declared in the Set.
var ErrUnknownType = errors.New("type is not registered")

// Set is the collection of types known to one database session. It maps Go
// types to canonical names and back. Composite types (slices, arrays, maps)
// are derived on demand from their element types.
type Set struct {
	all    []*Type
	byGo   map[reflect.Type]*Type
	byName map[string]*Type
	anyT   *Type

	mu               sync.RWMutex
	composites       map[reflect.Type]*Type
	compositesByName map[string]*Type
}

// NewSet builds a Set from the built-in types plus the given declarations.
// Declarations are copied; the same *Type may be used by several sets.
func NewSet(types ...*Type) (*Set, error) {
	s := &Set{
		byGo:             make(map[reflect.Type]*Type),
		byName:           make(map[string]*Type),
		composites:       make(map[reflect.Type]*Type),
		compositesByName: make(map[string]*Type),
	}
	for _, t := range builtins() {
		if err := s.add(t); err != nil {
			return nil, err
		}
	}
	s.anyT = s.byName[AnyName]

	for _, t := range types {
		if t == nil {
			return nil, errors.New("schema: nil type in set")
		}
		if err := s.add(t.clone()); err != nil {
			return nil, err
		}
	}
	for _, t := range s.all {
		if err := s.bind(t); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Set) add(t *Type) error {
	name := t.CanonicalName()
	if prev, ok := s.byName[name]; ok {
		if prev.goType == t.goType {
			return nil
		}
		return fmt.Errorf("schema: %s declared for both %v and %v", name, prev.goType, t.goType)
	}
	if prev, ok := s.byGo[t.goType]; ok {
		return fmt.Errorf("schema: %v declared as both %s and %s", t.goType, prev.CanonicalName(), name)
	}
	s.all = append(s.all, t)
	s.byName[name] = t
	s.byGo[t.goType] = t
	return nil
}

// bind resolves the type references of a declaration to canonical names.
func (s *Set) bind(t *Type) error {
	switch t.desc.Class {
	case ClassStruct:
		for i, f := range t.fields {
			ref, err := s.nameOf(f.goType)
			if err != nil {
				return fmt.Errorf("schema: %s.%s: %w", t.CanonicalName(), f.Name, err)
			}
			t.fields[i].Type = ref
			for j := range t.desc.Fields {
				if t.desc.Fields[j].Order == f.Order {
					t.desc.Fields[j].Type = ref
				}
			}
			if sf := t.goType.Field(f.index[0]); sf.Anonymous && valueType(sf.Type).Kind() == reflect.Struct && t.desc.Base == "" {
				t.desc.Base = ref
			}
		}
	case ClassSurrogate:
		ref, err := s.nameOf(t.surrogate.goType)
		if err != nil {
			return fmt.Errorf("schema: %s surrogate: %w", t.CanonicalName(), err)
		}
		if ref == t.CanonicalName() {
			return fmt.Errorf("schema: %s cannot be its own surrogate", ref)
		}
		t.desc.Surrogate = ref
	}
	return nil
}

// All returns the built-in types followed by the declared ones.
func (s *Set) All() []*Type {
	return append([]*Type(nil), s.all...)
}

// Lookup returns the declared or built-in type bound to rt (pointers are
// dereferenced). Composites and undeclared interfaces are not included.
func (s *Set) Lookup(rt reflect.Type) (*Type, bool) {
	t, ok := s.byGo[valueType(rt)]
	return t, ok
}

// TypeOf returns the type describing rt, deriving composites as needed.
func (s *Set) TypeOf(rt reflect.Type) (*Type, error) {
	rt = valueType(rt)
	if t, ok := s.byGo[rt]; ok {
		return t, nil
	}
	if rt.Kind() == reflect.Interface {
		return s.anyT, nil
	}

	s.mu.RLock()
	t, ok := s.composites[rt]
	s.mu.RUnlock()
	if ok {
		return t, nil
	}

	name, err := s.nameOf(rt)
	if err != nil {
		return nil, err
	}
	desc := Descriptor{Name: name}
	switch rt.Kind() {
	case reflect.Slice:
		desc.Class = ClassSlice
		desc.Elem, _ = s.nameOf(rt.Elem())
	case reflect.Array:
		desc.Class = ClassArray
		desc.Elem, _ = s.nameOf(rt.Elem())
	case reflect.Map:
		desc.Class = ClassMap
		desc.Key, _ = s.nameOf(rt.Key())
		desc.Elem, _ = s.nameOf(rt.Elem())
	}
	t = &Type{desc: desc, goType: rt}

	s.mu.Lock()
	if prev, ok := s.composites[rt]; ok {
		t = prev
	} else {
		s.composites[rt] = t
	}
	s.mu.Unlock()
	return t, nil
}

// NameOf returns the canonical name for rt.
func (s *Set) NameOf(rt reflect.Type) (string, error) {
	return s.nameOf(rt)
}

func (s *Set) nameOf(rt reflect.Type) (string, error) {
	rt = valueType(rt)
	if t, ok := s.byGo[rt]; ok {
		return t.CanonicalName(), nil
	}
	switch rt.Kind() {
	case reflect.Interface:
		return AnyName, nil
	case reflect.Slice:
		e, err := s.nameOf(rt.Elem())
		if err != nil {
			return "", err
		}
		return "[]" + e, nil
	case reflect.Array:
		e, err := s.nameOf(rt.Elem())
		if err != nil {
			return "", err
		}
		return "[" + strconv.Itoa(rt.Len()) + "]" + e, nil
	case reflect.Map:
		k, err := s.nameOf(rt.Key())
		if err != nil {
			return "", err
		}
		v, err := s.nameOf(rt.Elem())
		if err != nil {
			return "", err
		}
		return "map[" + k + "]" + v, nil
	}
	return "", fmt.Errorf("%w: %v", ErrUnknownType, rt)
}

// ByName resolves a canonical name to a type of this set. Composite names
// resolve when all of their element types do.
func (s *Set) ByName(name string) (*Type, bool) {
	if t, ok := s.byName[name]; ok {
		return t, true
	}
	s.mu.RLock()
	t, ok := s.compositesByName[name]
	s.mu.RUnlock()
	if ok {
		return t, true
	}

	rt, ok := s.parse(name)
	if !ok {
		return nil, false
	}
	t, err := s.TypeOf(rt)
	if err != nil {
		return nil, false
	}
	s.mu.Lock()
	s.compositesByName[name] = t
	s.mu.Unlock()
	return t, true
}

func (s *Set) parse(name string) (reflect.Type, bool) {
	if t, ok := s.byName[name]; ok {
		return t.goType, true
	}
	switch {
	case strings.HasPrefix(name, "[]"):
		elem, ok := s.parse(name[2:])
		if !ok {
			return nil, false
		}
		return reflect.SliceOf(elem), true
	case strings.HasPrefix(name, "map["):
		end := matchBracket(name, 3)
		if end < 0 {
			return nil, false
		}
		key, ok := s.parse(name[4:end])
		if !ok || !key.Comparable() {
			return nil, false
		}
		elem, ok := s.parse(name[end+1:])
		if !ok {
			return nil, false
		}
		return reflect.MapOf(key, elem), true
	case strings.HasPrefix(name, "["):
		end := strings.IndexByte(name, ']')
		if end < 0 {
			return nil, false
		}
		n, err := strconv.Atoi(name[1:end])
		if err != nil || n < 0 {
			return nil, false
		}
		elem, ok := s.parse(name[end+1:])
		if !ok {
			return nil, false
		}
		return reflect.ArrayOf(n, elem), true
	}
	return nil, false
}

func matchBracket(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

package schema

import (
	"fmt"
	"sort"
)

// BreakingChangeError reports a structural change that makes previously
// stored payloads of a type unsafe to read.
type BreakingChangeError struct {
	Type   string
	Reason string
}

func (e *BreakingChangeError) Error() string {
	return fmt.Sprintf("breaking change in type %s: %s", e.Type, e.Reason)
}

func breaking(d *Descriptor, format string, args ...any) error {
	return &BreakingChangeError{Type: d.CanonicalName(), Reason: fmt.Sprintf(format, args...)}
}

// CheckCompatibility compares the stored descriptor of a type with the one
// supplied by the current process. It returns a *BreakingChangeError when
// payloads written under old cannot be read under cur. Added fields and
// added enum members are compatible.
func CheckCompatibility(old, cur *Descriptor) error {
	if old.Class != cur.Class {
		return breaking(cur, "class changed from %s to %s", old.Class, cur.Class)
	}
	switch cur.Class {
	case ClassStruct:
		for _, f := range cur.Fields {
			if prev, ok := old.FieldByName(f.Name); ok {
				if prev.Type != f.Type {
					return breaking(cur, "field %q changed type from %s to %s", f.Name, prev.Type, f.Type)
				}
				if prev.Order != f.Order {
					return breaking(cur, "field %q moved from order %d to %d", f.Name, prev.Order, f.Order)
				}
			}
			if prev, ok := old.FieldByOrder(f.Order); ok && prev.Name != f.Name {
				return breaking(cur, "order %d reassigned from field %q to %q", f.Order, prev.Name, f.Name)
			}
		}
	case ClassEnum:
		if old.EnumUnderlying != cur.EnumUnderlying {
			return breaking(cur, "underlying type changed from %s to %s", old.EnumUnderlying, cur.EnumUnderlying)
		}
	case ClassSurrogate:
		if old.Surrogate != cur.Surrogate {
			return breaking(cur, "surrogate changed from %s to %s", old.Surrogate, cur.Surrogate)
		}
	case ClassSlice, ClassArray, ClassMap:
		if old.Elem != cur.Elem || old.Key != cur.Key {
			return breaking(cur, "element type changed")
		}
	}
	return nil
}

// Merge returns cur extended with the fields and enum members that only
// old knows about. Keeping retired fields lets later versions detect an
// order id being reused for a different field.
func Merge(old, cur *Descriptor) Descriptor {
	m := cur.Clone()
	for _, f := range old.Fields {
		if _, ok := m.FieldByOrder(f.Order); !ok {
			m.Fields = append(m.Fields, f)
		}
	}
	m.sortFields()

	seen := make(map[string]bool, len(m.EnumMembers))
	for _, em := range m.EnumMembers {
		seen[em.Name] = true
	}
	for _, em := range old.EnumMembers {
		if !seen[em.Name] {
			m.EnumMembers = append(m.EnumMembers, em)
		}
	}
	sort.SliceStable(m.EnumMembers, func(i, j int) bool { return m.EnumMembers[i].Value < m.EnumMembers[j].Value })
	if m.Base == "" {
		m.Base = old.Base
	}
	return m
}

// Equal reports whether two descriptors persist identically.
func Equal(a, b *Descriptor) bool {
	if a.Namespace != b.Namespace || a.Name != b.Name || a.Class != b.Class ||
		a.Base != b.Base || a.EnumUnderlying != b.EnumUnderlying ||
		a.Elem != b.Elem || a.Key != b.Key || a.Surrogate != b.Surrogate ||
		len(a.Fields) != len(b.Fields) || len(a.EnumMembers) != len(b.EnumMembers) {
		return false
	}
	for i := range a.Fields {
		if a.Fields[i] != b.Fields[i] {
			return false
		}
	}
	for i := range a.EnumMembers {
		if a.EnumMembers[i] != b.EnumMembers[i] {
			return false
		}
	}
	return true
}

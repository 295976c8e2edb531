package schema

import (
	"net/netip"
	"reflect"
	"time"
)

// AnyName is the canonical name of undeclared interface types.
const AnyName = "any"

var (
	anyType      = reflect.TypeFor[any]()
	bytesType    = reflect.TypeFor[[]byte]()
	timeType     = reflect.TypeFor[time.Time]()
	durationType = reflect.TypeFor[time.Duration]()
)

func primitive(namespace, name string, rt reflect.Type) *Type {
	return &Type{
		desc:    Descriptor{Namespace: namespace, Name: name, Class: ClassPrimitive},
		goType:  rt,
		byOrder: map[int]int{},
	}
}

// builtins returns the types every Set knows about, in a fixed order so
// that a fresh database assigns them the same type ids.
func builtins() []*Type {
	ts := []*Type{
		primitive("", "bool", reflect.TypeFor[bool]()),
		primitive("", "int", reflect.TypeFor[int]()),
		primitive("", "int8", reflect.TypeFor[int8]()),
		primitive("", "int16", reflect.TypeFor[int16]()),
		primitive("", "int32", reflect.TypeFor[int32]()),
		primitive("", "int64", reflect.TypeFor[int64]()),
		primitive("", "uint", reflect.TypeFor[uint]()),
		primitive("", "uint8", reflect.TypeFor[uint8]()),
		primitive("", "uint16", reflect.TypeFor[uint16]()),
		primitive("", "uint32", reflect.TypeFor[uint32]()),
		primitive("", "uint64", reflect.TypeFor[uint64]()),
		primitive("", "float32", reflect.TypeFor[float32]()),
		primitive("", "float64", reflect.TypeFor[float64]()),
		primitive("", "string", reflect.TypeFor[string]()),
		primitive("", "bytes", bytesType),
		primitive("time", "Time", timeType),
		primitive("time", "Duration", durationType),
		{
			desc:   Descriptor{Name: AnyName, Class: ClassInterface},
			goType: anyType,
		},
	}
	ts = append(ts, Must(Surrogate("netip", "Addr", addrToString, addrFromString)))
	return ts
}

func addrToString(a netip.Addr) string {
	if !a.IsValid() {
		return ""
	}
	return a.String()
}

func addrFromString(s string) netip.Addr {
	if s == "" {
		return netip.Addr{}
	}
	a, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}
	}
	return a
}

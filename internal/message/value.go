package message

// Value is the closed tagged union spec §9 asks for in place of the
// original's dynamic class-hint decoding: every wire value is one of
// null, bool, int, float, string, array, object, or a registered class
// instance. Codecs marshal/unmarshal exclusively through Value so that
// decode(encode(v)) == v (spec §8 law 1) is a property of the type, not
// an accident of interface{} round-tripping.
type Value struct {
	kind  valueKind
	b     bool
	i     int64
	f     float64
	s     string
	arr   []Value
	obj   map[string]Value
	objOrder []string // preserves insertion order for Object wire form
	class *ClassValue
}

type valueKind int

const (
	KindNull valueKind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindArray
	KindObject
	KindClass
)

// ClassValue is a decoded instance of a registered class: its hint and
// its field values keyed by the class's declared key names. Unknown
// hints still decode here, preserving fields, per spec §3 "Unknown hints
// decode into an opaque placeholder that preserves fields."
type ClassValue struct {
	Hint   string
	Fields map[string]Value
	// Order is the key order used when encoding: the declared order for
	// array-protocol classes, sorted keys for decoded hash payloads, and
	// positional keys "0", "1", ... for an unknown hint's array payload.
	// When empty, encoders fall back to map iteration order.
	Order []string
}

// Kind reports which variant v holds.
func (v Value) Kind() valueKind { return v.kind }

func Null() Value { return Value{kind: KindNull} }

func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

func Int(i int64) Value { return Value{kind: KindInt, i: i} }

func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

func String(s string) Value { return Value{kind: KindString, s: s} }

func Array(items ...Value) Value { return Value{kind: KindArray, arr: items} }

// Object builds an object Value preserving the given key order.
func Object(keys []string, values map[string]Value) Value {
	order := make([]string, len(keys))
	copy(order, keys)
	obj := make(map[string]Value, len(values))
	for k, v := range values {
		obj[k] = v
	}
	return Value{kind: KindObject, obj: obj, objOrder: order}
}

// Class builds a registered-class instance Value.
func Class(hint string, fields map[string]Value, order []string) Value {
	return Value{kind: KindClass, class: &ClassValue{Hint: hint, Fields: fields, Order: order}}
}

func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) Bool() (bool, bool)       { return v.b, v.kind == KindBool }
func (v Value) Int() (int64, bool)       { return v.i, v.kind == KindInt }
func (v Value) Float() (float64, bool)   { return v.f, v.kind == KindFloat }
func (v Value) String() (string, bool)   { return v.s, v.kind == KindString }
func (v Value) Array() ([]Value, bool)   { return v.arr, v.kind == KindArray }
func (v Value) AsClass() (*ClassValue, bool) { return v.class, v.kind == KindClass }

// Object returns the object's values and the declared key order.
func (v Value) Object() (map[string]Value, []string, bool) {
	return v.obj, v.objOrder, v.kind == KindObject
}

// Equal reports structural equality, the relation the round-trip law
// (spec §8 law 1) is stated in terms of.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		// Go's json numbers don't distinguish int/float on the wire in
		// every case; treat numerically-equal int/float as equal.
		if (a.kind == KindInt && b.kind == KindFloat) || (a.kind == KindFloat && b.kind == KindInt) {
			af, _ := asFloat(a)
			bf, _ := asFloat(b)
			return af == bf
		}
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindInt:
		return a.i == b.i
	case KindFloat:
		return a.f == b.f
	case KindString:
		return a.s == b.s
	case KindArray:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(a.obj) != len(b.obj) {
			return false
		}
		for k, av := range a.obj {
			bv, ok := b.obj[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	case KindClass:
		if a.class.Hint != b.class.Hint || len(a.class.Fields) != len(b.class.Fields) {
			return false
		}
		for k, av := range a.class.Fields {
			bv, ok := b.class.Fields[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	}
	return false
}

func asFloat(v Value) (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	default:
		return 0, false
	}
}

package model

// DatumKind discriminates the algebraic cases of a Datum, mirroring the
// runtime type names the built-in `type` function reports (spec.md §4.6).
type DatumKind string

const (
	DatumNull     DatumKind = "NoneType"
	DatumBool     DatumKind = "bool"
	DatumInt      DatumKind = "int"
	DatumFloat    DatumKind = "float"
	DatumString   DatumKind = "str"
	DatumResource DatumKind = "Resource"
	DatumList     DatumKind = "list"
	DatumSet      DatumKind = "set"
	DatumMap      DatumKind = "dict"
)

// Datum is the content-addressed value payload. Nested containers hold refs
// to other Datums rather than embedded values; only leaves carry inline
// scalars, per spec.md §3.
type Datum struct {
	Kind     DatumKind `msgpack:"kind"`
	Bool     bool      `msgpack:"bool,omitempty"`
	Int      int64     `msgpack:"int,omitempty"`
	Float    float64   `msgpack:"float,omitempty"`
	Str      string    `msgpack:"str,omitempty"`
	Resource *Resource `msgpack:"resource,omitempty"`

	// List preserves insertion order; Set and Map are stored in sorted
	// canonical order (see internal/codec) so that structurally equal
	// datums always pack identically.
	List []Ref          `msgpack:"list,omitempty"`
	Set  []Ref          `msgpack:"set,omitempty"`
	Map  map[string]Ref `msgpack:"map,omitempty"`
}

// TypeName reports the object-store bucket this value lives in.
func (Datum) TypeName() string { return "datum" }

// HashFields is the ordered field list that participates in the content
// hash. Datum hashes on everything — two structurally different datums
// must never collide.
func (d *Datum) HashFields() []any {
	return []any{d.Kind, d.Bool, d.Int, d.Float, d.Str, d.Resource, d.List, d.Set, d.Map}
}

// RuntimeType reports the built-in `type(x)` name for an unrolled value,
// used directly by the fn dispatch built-ins (spec.md §4.6).
func (d *Datum) RuntimeType() string {
	return string(d.Kind)
}

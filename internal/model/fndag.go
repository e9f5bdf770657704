package model

// FnDag extends Dag with the reified argv node. Its identity is the global
// cache key: it is content-addressed on Argv alone, so the same argv in any
// repository yields the same FnDag id (spec.md §3 invariant 6).
type FnDag struct {
	Dag
	Argv Ref `msgpack:"fnargv"` // Ref -> Node(Argv)
}

func (FnDag) TypeName() string { return "fndag" }

// HashFields hashes only Argv: distinct argvs yield distinct FnDags, and an
// equal argv in a different repository produces the identical id.
func (f *FnDag) HashFields() []any { return []any{f.Argv} }

// Clone deep-enough copies the dag portion for copy-on-write mutation.
func (f *FnDag) Clone() *FnDag {
	return &FnDag{Dag: *f.Dag.Clone(), Argv: f.Argv}
}

package model

// Typed is implemented by every persisted value type; it names the
// object-store bucket (spec.md §4.2's per-type sub-tables) the value lives
// in.
type Typed interface {
	TypeName() string
}

// Hashable is implemented by every persisted value type to report the
// ordered field list contributing to its content hash. A nil/empty result
// tells the codec to mint a fresh UUID instead of hashing (spec.md §4.1),
// which is how Node/Dag/Head/Index get UUID identity inside a
// content-addressed framework.
type Hashable interface {
	HashFields() []any
}

// BuiltinFns is the recognized set of in-process pure functions spec.md
// §4.6 names.
var BuiltinFns = map[string]bool{
	"type":     true,
	"len":      true,
	"keys":     true,
	"get":      true,
	"contains": true,
	"list":     true,
	"dict":     true,
	"set":      true,
	"assoc":    true,
	"conj":     true,
	"build":    true,
}

// DefaultBranch is the branch name created on repo init.
const DefaultBranch = "main"

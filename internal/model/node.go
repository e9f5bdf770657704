package model

import "github.com/vmihailenco/msgpack/v5"

// NodeKind discriminates the sum type spec.md §9's "Tagged variant
// Node.data" redesign note calls for: an explicit discriminator instead of
// Python's duck-typed dataclass subclasses.
type NodeKind string

const (
	NodeLiteral NodeKind = "Literal"
	NodeImport  NodeKind = "Import"
	NodeFn      NodeKind = "Fn"
	NodeArgv    NodeKind = "Argv"
)

// NodeData is the sum type of what a Node carries. Exactly one of Literal,
// Import, Fn, Argv implements it; the dispatcher type-switches on it.
type NodeData interface {
	Kind() NodeKind
}

// Literal is an inline value.
type Literal struct {
	Value Ref `msgpack:"value"` // Ref -> Datum
}

func (Literal) Kind() NodeKind { return NodeLiteral }

// Import borrows a value from another dag.
type Import struct {
	Dag  Ref  `msgpack:"dag"`            // Ref -> Dag
	Node *Ref `msgpack:"node,omitempty"` // Ref -> Node | nil
}

func (Import) Kind() NodeKind { return NodeImport }

// Fn is a consummated function application.
type Fn struct {
	Dag  Ref   `msgpack:"dag"`            // Ref -> FnDag
	Argv []Ref `msgpack:"argv"`           // []Ref -> Node
	Node *Ref  `msgpack:"node,omitempty"` // Ref -> Node | nil
}

func (Fn) Kind() NodeKind { return NodeFn }

// Argv is the reified argument vector inside an FnDag.
type Argv struct {
	Value Ref `msgpack:"value"` // Ref -> Datum
}

func (Argv) Kind() NodeKind { return NodeArgv }

// Node has UUID identity for Literal/Import/Fn: two literal nodes with the
// same value are distinct objects (spec.md §3).
type Node struct {
	Data NodeData `msgpack:"-"`
	Doc  *string  `msgpack:"doc,omitempty"`
}

func (Node) TypeName() string { return "node" }

// HashFields mints a fresh UUID on every put for Literal/Import/Fn nodes
// (spec.md §3 invariant/§9 "never hash this type" marker), matching
// Index/Dag/Head. Argv is the one exception: FnDag identity depends only on
// its argv (spec.md §3 invariant 6, §4.6 step 2 — "idempotent across
// repositories"), which only holds if the argv node itself is
// content-addressed on its value rather than UUID-minted.
func (n *Node) HashFields() []any {
	if a, ok := n.Data.(Argv); ok {
		return []any{a.Value}
	}
	return nil
}

// nodeWire is the flat on-disk shape for Node: NodeData is an interface, so
// msgpack's struct reflection can't marshal it directly. Encoding to a flat
// discriminated record keeps the storage format a single, simple msgpack
// struct instead of reinventing ext-type dispatch per value.
type nodeWire struct {
	Kind  NodeKind `msgpack:"kind"`
	Doc   *string  `msgpack:"doc,omitempty"`
	Value Ref      `msgpack:"value,omitempty"`
	Dag   Ref      `msgpack:"dag,omitempty"`
	Node  *Ref     `msgpack:"node,omitempty"`
	Argv  []Ref    `msgpack:"argv,omitempty"`
}

var (
	_ msgpack.CustomEncoder = (*Node)(nil)
	_ msgpack.CustomDecoder = (*Node)(nil)
)

// EncodeMsgpack flattens the NodeData sum type into nodeWire.
func (n Node) EncodeMsgpack(enc *msgpack.Encoder) error {
	w := nodeWire{Doc: n.Doc}
	switch d := n.Data.(type) {
	case Literal:
		w.Kind = NodeLiteral
		w.Value = d.Value
	case Import:
		w.Kind = NodeImport
		w.Dag = d.Dag
		w.Node = d.Node
	case Fn:
		w.Kind = NodeFn
		w.Dag = d.Dag
		w.Argv = d.Argv
		w.Node = d.Node
	case Argv:
		w.Kind = NodeArgv
		w.Value = d.Value
	default:
		w.Kind = ""
	}
	return enc.Encode(w)
}

// DecodeMsgpack reconstructs NodeData from nodeWire.
func (n *Node) DecodeMsgpack(dec *msgpack.Decoder) error {
	var w nodeWire
	if err := dec.Decode(&w); err != nil {
		return err
	}
	n.Doc = w.Doc
	switch w.Kind {
	case NodeLiteral:
		n.Data = Literal{Value: w.Value}
	case NodeImport:
		n.Data = Import{Dag: w.Dag, Node: w.Node}
	case NodeFn:
		n.Data = Fn{Dag: w.Dag, Argv: w.Argv, Node: w.Node}
	case NodeArgv:
		n.Data = Argv{Value: w.Value}
	}
	return nil
}

package model

// Dag is a named acyclic graph of nodes within a commit's tree. It has
// UUID identity (spec.md §3): two dags are never considered the same
// object merely because they contain equal nodes.
type Dag struct {
	Nodes  []Ref          `msgpack:"nodes"`            // []Ref -> Node, insertion order
	Names  map[string]Ref `msgpack:"names"`             // name -> Ref -> Node
	Result *Ref           `msgpack:"result,omitempty"`  // Ref -> Node | nil
	Error  *Error         `msgpack:"error,omitempty"`
}

func (Dag) TypeName() string  { return "dag" }
func (d *Dag) HashFields() []any { return nil } // UUID identity

// Ready reports whether the dag has a result or an error recorded.
func (d *Dag) Ready() bool {
	return d.Result != nil || d.Error != nil
}

// NameOf returns the name a node was registered under, or "" if anonymous.
func (d *Dag) NameOf(node Ref) string {
	for k, v := range d.Names {
		if v == node {
			return k
		}
	}
	return ""
}

// HasNode reports whether ref is already present in the nodes list.
func (d *Dag) HasNode(ref Ref) bool {
	for _, n := range d.Nodes {
		if n == ref {
			return true
		}
	}
	return false
}

// Clone makes a deep-enough copy for copy-on-write mutation inside a
// builder transaction.
func (d *Dag) Clone() *Dag {
	names := make(map[string]Ref, len(d.Names))
	for k, v := range d.Names {
		names[k] = v
	}
	nodes := make([]Ref, len(d.Nodes))
	copy(nodes, d.Nodes)
	var result *Ref
	if d.Result != nil {
		r := *d.Result
		result = &r
	}
	var errv *Error
	if d.Error != nil {
		e := *d.Error
		errv = &e
	}
	return &Dag{Nodes: nodes, Names: names, Result: result, Error: errv}
}

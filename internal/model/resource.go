package model

// Resource is an opaque handle identified by URI. It is never stored under
// its own object-store bucket — it is carried inline as a scalar leaf of a
// Datum, exactly as spec.md describes it ("opaque to the engine; carried as
// a scalar datum leaf").
type Resource struct {
	URI     string `msgpack:"uri"`
	Data    *Ref   `msgpack:"data,omitempty"`
	Adapter *string `msgpack:"adapter,omitempty"`
}

// Equal reports structural equality, used by the datum packer to dedupe
// identical resource leaves.
func (r Resource) Equal(o Resource) bool {
	if r.URI != o.URI {
		return false
	}
	if (r.Data == nil) != (o.Data == nil) {
		return false
	}
	if r.Data != nil && *r.Data != *o.Data {
		return false
	}
	if (r.Adapter == nil) != (o.Adapter == nil) {
		return false
	}
	if r.Adapter != nil && *r.Adapter != *o.Adapter {
		return false
	}
	return true
}

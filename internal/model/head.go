package model

// Head is a branch pointer, keyed by a user-supplied name ("head/<name>").
// UUID identity: the spec never content-addresses a mutable pointer.
type Head struct {
	Commit Ref `msgpack:"commit"`
}

func (Head) TypeName() string   { return "head" }
func (h *Head) HashFields() []any { return nil }

// GetCommit lets repo.ctx treat Head and Index uniformly: both expose the
// commit they currently point at.
func (h *Head) GetCommit() Ref { return h.Commit }

package model

// Index is a movable pointer staging a dag under construction, one per
// in-flight DAG builder session. UUID identity.
type Index struct {
	Commit Ref `msgpack:"commit"`
	Dag    Ref `msgpack:"dag"`
}

func (Index) TypeName() string    { return "index" }
func (i *Index) HashFields() []any { return nil }

// GetCommit lets repo.ctx treat Head and Index uniformly: both expose the
// commit they currently point at.
func (i *Index) GetCommit() Ref { return i.Commit }

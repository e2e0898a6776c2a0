package schema

import "fmt"

// Ref names a replicated object by entity id plus an optional sub-object
// offset (0 = the entity's root object). The zero value is the null ref.
type Ref struct {
	Entity int64  `json:"entity"`
	Offset uint32 `json:"offset,omitempty"`
}

var NullRef = Ref{}

func (r Ref) IsNull() bool { return r.Entity == 0 && r.Offset == 0 }

func (r Ref) String() string {
	if r.IsNull() {
		return "ref(null)"
	}
	if r.Offset == 0 {
		return fmt.Sprintf("ref(%d)", r.Entity)
	}
	return fmt.Sprintf("ref(%d:%d)", r.Entity, r.Offset)
}

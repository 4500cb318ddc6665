package tree

import (
	"path/filepath"
	"time"
)

type EditKind string

const (
	EditCreation     EditKind = "creation"
	EditDeletion     EditKind = "deletion"
	EditModification EditKind = "modification"
)

// Edit is one observable change to the mirror. Origin is the opaque token
// supplied by whoever drove the change; consumers use it to recognize
// echoes of their own writes.
type Edit struct {
	Base   string
	Rel    string
	Origin any
	Kind   EditKind
	At     time.Time
}

func newEdit(kind EditKind, base, path string, origin any) Edit {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		rel = path
	}
	return Edit{
		Base:   base,
		Rel:    rel,
		Origin: origin,
		Kind:   kind,
		At:     time.Now().UTC(),
	}
}

// AbsolutePath joins the base and relative parts back together.
func (edit Edit) AbsolutePath() string {
	return filepath.Join(edit.Base, edit.Rel)
}

func (edit Edit) Type() string {
	return "edit_" + string(edit.Kind)
}

func (edit Edit) Timestamp() time.Time {
	return edit.At
}

package tree

import (
	"github.com/entangld-go/entangld/entangleerr"
	"github.com/entangld-go/entangld/treepath"
)

// SetLeaf writes value at path beneath root, auto-creating intermediate
// mappings as needed. path must not be the root ("" is handled by the
// caller, which owns whole-tree replacement). value == nil removes the
// leaf instead of writing it.
func SetLeaf(root map[string]any, path string, value any) error {
	segments := treepath.Split(path)
	parent, ok := Navigate(root, segments[:len(segments)-1])
	if !ok {
		return entangleerr.New(entangleerr.KindTypeError, "set", path)
	}
	last := segments[len(segments)-1]
	if value == nil {
		delete(parent, last)
		return nil
	}
	parent[last] = value
	return nil
}

// PushLeaf appends value to the ordered sequence at path, trimming from
// the head until the sequence length is at most limit (when limit > 0).
// It fails with KindTypeError if an existing leaf at path isn't a
// sequence.
func PushLeaf(root map[string]any, path string, value any, limit int) error {
	segments := treepath.Split(path)
	parent, ok := Navigate(root, segments[:len(segments)-1])
	if !ok {
		return entangleerr.New(entangleerr.KindTypeError, "push", path)
	}
	last := segments[len(segments)-1]

	var seq []any
	if existing, present := parent[last]; present {
		s, isSeq := existing.([]any)
		if !isSeq {
			return entangleerr.New(entangleerr.KindTypeError, "push", path)
		}
		seq = s
	}
	seq = append(seq, value)
	if limit > 0 {
		for len(seq) > limit {
			seq = seq[1:]
		}
	}
	parent[last] = seq
	return nil
}

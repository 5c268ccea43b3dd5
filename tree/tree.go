// Package tree implements the local, in-memory hierarchical store: a
// nested mapping of string segments to leaves, where a leaf is a
// primitive, an ordered sequence, a nested mapping, or a Callable.
//
// Go already gives us the tagged-union the original design notes ask
// for ("Map(children), Seq(items), Primitive(v), Callable(fn)") for
// free: a node is plain `any`, and the concrete type (map[string]any,
// []any, a Callable, or anything else) IS the tag. Resolve branches on
// it with a type switch rather than a hand-rolled variant.
package tree

import (
	"context"

	"github.com/entangld-go/entangld/treepath"
)

// Callable is a leaf that acts as a getter/RPC. Invoking it may block;
// that block IS the future/promise the original design talks about,
// since there is no separate async handle in idiomatic Go.
type Callable func(ctx context.Context, params any) (any, error)

// ResolveKind classifies the outcome of Resolve.
type ResolveKind int

const (
	// Found means the path resolved to a concrete (non-callable) node.
	Found ResolveKind = iota
	// ViaCallable means a Callable leaf was encountered; Remaining
	// holds the still-unconsumed suffix (possibly empty) that the
	// caller should continue resolving into the callable's result.
	ViaCallable
	// Absent means a path segment did not exist.
	Absent
)

// Resolve walks path against root one segment at a time. If a Callable
// is encountered (whether or not the path is fully consumed at that
// point) resolution stops there, since a get landing on a callable
// always invokes it. If a segment is missing, it reports Absent.
func Resolve(root any, path string) (node any, remaining string, kind ResolveKind) {
	segments := treepath.Split(path)
	cur := root
	for i, seg := range segments {
		if fn, ok := cur.(Callable); ok {
			return fn, treepath.Join(segments[i:]), ViaCallable
		}
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, "", Absent
		}
		next, present := m[seg]
		if !present {
			return nil, "", Absent
		}
		cur = next
	}
	if fn, ok := cur.(Callable); ok {
		return fn, "", ViaCallable
	}
	return cur, "", Found
}

// Navigate walks segments against root, auto-creating intermediate
// map[string]any containers as it goes, and returns the map that should
// hold the final segment. It fails if an intermediate segment names a
// non-map leaf (a primitive, sequence, or callable can't have children
// auto-vivified beneath it).
func Navigate(root map[string]any, segments []string) (parent map[string]any, ok bool) {
	cur := root
	for _, seg := range segments {
		next, present := cur[seg]
		if !present {
			created := map[string]any{}
			cur[seg] = created
			cur = created
			continue
		}
		m, isMap := next.(map[string]any)
		if !isMap {
			return nil, false
		}
		cur = m
	}
	return cur, true
}

// Lookup performs plain, non-invoking map navigation (no callable
// continuation), finding an existing leaf without triggering RPC
// semantics.
func Lookup(root any, path string) (node any, found bool) {
	segments := treepath.Split(path)
	cur := root
	for _, seg := range segments {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		next, present := m[seg]
		if !present {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// Project returns a depth-limited copy of node: primitive leaves are
// kept as-is; nested containers (maps/sequences) at depth 0 become
// empty containers of the same kind; otherwise it recurses with
// depth-1. Callables are left untouched; dereferencing them is
// Dereference's job, applied as a separate pass.
func Project(node any, depth int) any {
	switch v := node.(type) {
	case map[string]any:
		if depth <= 0 {
			return map[string]any{}
		}
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = Project(val, depth-1)
		}
		return out
	case []any:
		if depth <= 0 {
			return []any{}
		}
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = Project(val, depth-1)
		}
		return out
	default:
		return v
	}
}

// Dereference walks a copy of node, replacing every Callable it
// encounters with the value the callable produces (invoked with nil
// params), recursing into that value in turn. Non-serializable,
// non-callable leaves (anything that isn't a primitive, map, or slice)
// pass through unchanged; per the original design this is an accepted
// limitation of deref mode, not an error.
func Dereference(ctx context.Context, node any) (any, error) {
	switch v := node.(type) {
	case Callable:
		result, err := v(ctx, nil)
		if err != nil {
			return nil, err
		}
		return Dereference(ctx, result)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			d, err := Dereference(ctx, val)
			if err != nil {
				return nil, err
			}
			out[k] = d
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			d, err := Dereference(ctx, val)
			if err != nil {
				return nil, err
			}
			out[i] = d
		}
		return out, nil
	default:
		return v, nil
	}
}

// Package store implements Store, the federated hierarchical
// key-value tree at the heart of entangld-go. A Store owns a local
// tree, a table of mounted remote namespaces, and the local half of
// every subscription chain that passes through it. It is wire-format
// and transport agnostic: callers supply a Transmit function and
// forward decoded inbound messages through Receive, keeping the wire format and
// the HTTP-shaped outer layers entirely out of this package.
//
// A single mutex interlocks every public operation's bookkeeping. It
// is released before any call that can re-enter the store (Transmit,
// a subscription Callback, or a Callable leaf) so a synchronously
// wired transport (two stores calling straight into each other's
// Receive, as the demo and the tests both do) never deadlocks against
// itself.
package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/entangld-go/entangld/entangleerr"
	"github.com/entangld-go/entangld/message"
	"github.com/entangld-go/entangld/paramschema"
	"github.com/entangld-go/entangld/subscription"
	"github.com/entangld-go/entangld/tree"
	"github.com/entangld-go/entangld/treepath"
)

// Sender delivers msg to remote. Implementations own the actual wire
// encoding and transport; the store never sees bytes.
type Sender[R comparable] func(ctx context.Context, msg message.Message, remote R) error

// NamespaceEntry is a defensive-copy row returned by Namespaces.
type NamespaceEntry[R comparable] struct {
	Namespace string
	Remote    R
}

// SubscriptionInfo is a defensive-copy row returned by Subscriptions:
// just enough to audit what is mounted where, without exposing the
// live callback or remote handle a caller could use to mutate state
// outside the store's own API.
type SubscriptionInfo struct {
	Path       string
	ChainID    string
	Throttle   int
	IsHead     bool
	IsTerminal bool
}

type getResult struct {
	value any
	err   error
}

// Store is the federation unit of entangld-go. R is the type an
// embedding application uses to name a remote peer (a *websocket.Conn,
// a session ID, anything comparable).
type Store[R comparable] struct {
	mu sync.Mutex

	tree map[string]any
	// namespaces and remoteToNamespace are the two mutually inverse maps
	// tracking which remote is mounted at which dotted namespace path;
	// both are guarded by mu, so there is no need for either to be
	// independently concurrent.
	namespaces        map[string]NamespaceEntry[R]
	remoteToNamespace map[R]string
	outstanding       map[string]chan getResult
	subs              []*subscription.Link[R]
	paramSchemas      map[string]*paramschema.Schema

	send      Sender[R]
	derefMode bool
	log       *slog.Logger

	onSubscription   func(path, chainID string)
	onUnsubscription func(path, chainID string)
}

// Option configures a Store at construction time.
type Option[R comparable] func(*Store[R])

// WithLogger overrides the default logger, slog.Default().
func WithLogger[R comparable](log *slog.Logger) Option[R] {
	return func(s *Store[R]) { s.log = log }
}

// WithDerefMode starts the store with deref mode already enabled; see
// SetDerefMode.
func WithDerefMode[R comparable](on bool) Option[R] {
	return func(s *Store[R]) { s.derefMode = on }
}

// OnSubscription registers a hook fired whenever a terminal link (one
// with no downstream mount) is installed, the store's substitute for the
// generic event-emitter facade the original design exposes, scoped to
// exactly the notification the design notes call out as worth
// keeping.
func OnSubscription[R comparable](fn func(path, chainID string)) Option[R] {
	return func(s *Store[R]) { s.onSubscription = fn }
}

// OnUnsubscription registers a hook fired whenever a terminal link is
// torn down, having no downstream to forward the unsubscribe to.
func OnUnsubscription[R comparable](fn func(path, chainID string)) Option[R] {
	return func(s *Store[R]) { s.onUnsubscription = fn }
}

// New builds an empty Store. Namespace attachment, transmit wiring,
// and the root tree all start empty; a store with no Transmit set
// still serves purely local get/set/push/subscribe traffic.
func New[R comparable](opts ...Option[R]) *Store[R] {
	s := &Store[R]{
		tree:              map[string]any{},
		namespaces:        map[string]NamespaceEntry[R]{},
		remoteToNamespace: map[R]string{},
		outstanding:       map[string]chan getResult{},
		paramSchemas:      map[string]*paramschema.Schema{},
		log:               slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DerefMode reports whether gets recursively invoke callable leaves
// encountered in their result rather than returning them as opaque
// handles.
func (s *Store[R]) DerefMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.derefMode
}

// SetDerefMode toggles deref mode.
func (s *Store[R]) SetDerefMode(on bool) {
	s.mu.Lock()
	s.derefMode = on
	s.mu.Unlock()
}

// RegisterParamSchema declares the schema a callable leaf's RPC
// arguments must satisfy, checked once against the top-level params of
// a local Get on exactly path before the callable is invoked. Only
// params given as a map[string]any are validated; a Get with nil or
// int params is not checked. Passing a nil schema clears a previous
// registration.
func (s *Store[R]) RegisterParamSchema(path string, schema *paramschema.Schema) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if schema == nil {
		delete(s.paramSchemas, path)
		return
	}
	s.paramSchemas[path] = schema
}

// Transmit wires the function the store uses to deliver messages to
// mounted remotes. It must be called before any operation that
// crosses a mount boundary.
func (s *Store[R]) Transmit(send Sender[R]) error {
	if send == nil {
		return entangleerr.New(entangleerr.KindInvalidArgument, "transmit", "")
	}
	s.mu.Lock()
	s.send = send
	s.mu.Unlock()
	return nil
}

// Namespaces returns a defensive copy of the attached namespace table,
// ordered by namespace path.
func (s *Store[R]) Namespaces(ctx context.Context) ([]NamespaceEntry[R], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.namespacesLocked(), nil
}

// namespacesLocked returns every attached namespace entry sorted by
// path. Must be called with s.mu held.
func (s *Store[R]) namespacesLocked() []NamespaceEntry[R] {
	entries := make([]NamespaceEntry[R], 0, len(s.namespaces))
	for _, e := range s.namespaces {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Namespace < entries[j].Namespace })
	return entries
}

// Subscriptions returns a defensive copy of every link this store
// currently holds, local or pass-through.
func (s *Store[R]) Subscriptions() []SubscriptionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SubscriptionInfo, 0, len(s.subs))
	for _, l := range s.subs {
		out = append(out, SubscriptionInfo{
			Path:       l.Path,
			ChainID:    l.ChainID,
			Throttle:   l.Throttle,
			IsHead:     l.IsHead(),
			IsTerminal: l.IsTerminal(),
		})
	}
	return out
}

// SubscribedTo returns the chain IDs of every link (any role) whose
// local path exactly equals path.
func (s *Store[R]) SubscribedTo(path string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, l := range s.subs {
		if l.Path == path {
			ids = append(ids, l.ChainID)
		}
	}
	return ids
}

// Attach mounts remote at namespace: the local tree gains an empty
// placeholder mapping at namespace (so whole-tree reads reveal the
// mount), and every existing subscription whose path lies beneath
// namespace is re-homed onto the new remote.
func (s *Store[R]) Attach(ctx context.Context, namespace string, remote R) error {
	if namespace == "" {
		return entangleerr.New(entangleerr.KindInvalidArgument, "attach", namespace)
	}
	var zero R
	if remote == zero {
		return entangleerr.New(entangleerr.KindInvalidArgument, "attach", namespace)
	}

	s.mu.Lock()
	if _, exists := s.remoteToNamespace[remote]; exists {
		s.mu.Unlock()
		return entangleerr.New(entangleerr.KindAlreadyAttached, "attach", namespace)
	}
	if _, exists := s.namespaces[namespace]; exists {
		s.mu.Unlock()
		return entangleerr.New(entangleerr.KindAlreadyAttached, "attach", namespace)
	}
	s.namespaces[namespace] = NamespaceEntry[R]{Namespace: namespace, Remote: remote}
	s.remoteToNamespace[remote] = namespace

	segments := treepath.Split(namespace)
	if parent, ok := tree.Navigate(s.tree, segments[:len(segments)-1]); ok {
		parent[segments[len(segments)-1]] = map[string]any{}
	}

	var toRehome []*subscription.Link[R]
	var kept []*subscription.Link[R]
	for _, l := range s.subs {
		if treepath.IsBeneath(l.Path, namespace) {
			toRehome = append(toRehome, l)
		} else {
			kept = append(kept, l)
		}
	}
	s.subs = kept
	s.mu.Unlock()

	for _, l := range toRehome {
		if err := s.installLink(ctx, l.Path, l.Callback, l.Upstream, l.ChainID, l.Throttle); err != nil {
			s.log.Error("re-home subscription after attach failed", "path", l.Path, "id", l.ChainID, "err", err)
		}
	}
	return nil
}

// DetachNamespace removes the mount registered at namespace. Chains
// that were passing through it are left as-is; cleanup is left to the
// orphan-detection path in Receive.
func (s *Store[R]) DetachNamespace(namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.namespaces[namespace]
	if !ok {
		return entangleerr.New(entangleerr.KindNotFound, "detach", namespace)
	}
	delete(s.namespaces, namespace)
	delete(s.remoteToNamespace, entry.Remote)
	segments := treepath.Split(namespace)
	if parent, ok := tree.Navigate(s.tree, segments[:len(segments)-1]); ok {
		delete(parent, segments[len(segments)-1])
	}
	return nil
}

// DetachRemote removes whichever namespace remote is mounted at.
func (s *Store[R]) DetachRemote(remote R) error {
	s.mu.Lock()
	namespace, ok := s.remoteToNamespace[remote]
	s.mu.Unlock()
	if !ok {
		return entangleerr.New(entangleerr.KindNotFound, "detach", "")
	}
	return s.DetachNamespace(namespace)
}

// namespaceKeysLocked lists every attached namespace path, for feeding
// treepath.CommonMount. Must be called with s.mu held.
func (s *Store[R]) namespaceKeysLocked() []string {
	keys := make([]string, 0, len(s.namespaces))
	for ns := range s.namespaces {
		keys = append(keys, ns)
	}
	return keys
}

// remoteForNamespaceLocked looks up the remote mounted at ns. Must be
// called with s.mu held.
func (s *Store[R]) remoteForNamespaceLocked(ns string) R {
	return s.namespaces[ns].Remote
}

// Get resolves path, crossing a mount boundary and blocking for the
// reply if necessary, invoking any callable leaf encountered with
// params, and applying a depth-limited projection if params is a
// nonnegative int and resolution lands on non-callable data. When
// deref mode is on, the result is further walked to invoke any
// callable leaves nested within it.
func (s *Store[R]) Get(ctx context.Context, path string, params any) (any, error) {
	s.mu.Lock()
	ns, residual, found := treepath.CommonMount(path, s.namespaceKeysLocked())
	if found {
		remote := s.remoteForNamespaceLocked(ns)
		s.mu.Unlock()
		return s.getRemote(ctx, remote, residual, params)
	}
	s.mu.Unlock()
	return s.getLocal(ctx, path, params)
}

func (s *Store[R]) getRemote(ctx context.Context, remote R, path string, params any) (any, error) {
	id := uuid.NewString()
	ch := make(chan getResult, 1)

	s.mu.Lock()
	s.outstanding[id] = ch
	send := s.send
	s.mu.Unlock()

	if send == nil {
		s.mu.Lock()
		delete(s.outstanding, id)
		s.mu.Unlock()
		return nil, entangleerr.New(entangleerr.KindInvalidArgument, "get", path)
	}

	msg := message.Message{Kind: message.Get, Path: path, ID: id}
	switch v := params.(type) {
	case int:
		msg.Depth = &v
	case map[string]any:
		msg.Params = v
	}

	if err := send(ctx, msg, remote); err != nil {
		s.mu.Lock()
		delete(s.outstanding, id)
		s.mu.Unlock()
		return nil, err
	}

	select {
	case res := <-ch:
		return res.value, res.err
	case <-ctx.Done():
		s.mu.Lock()
		delete(s.outstanding, id)
		s.mu.Unlock()
		return nil, ctx.Err()
	}
}

func (s *Store[R]) getLocal(ctx context.Context, path string, params any) (any, error) {
	if m, ok := params.(map[string]any); ok {
		s.mu.Lock()
		schema := s.paramSchemas[path]
		s.mu.Unlock()
		if schema != nil {
			if err := schema.Validate(m); err != nil {
				return nil, err
			}
		}
	}

	var result any
	remaining := path
	var currentRoot any

	s.mu.Lock()
	currentRoot = s.tree
	s.mu.Unlock()

	for {
		s.mu.Lock()
		node, rem, kind := tree.Resolve(currentRoot, remaining)
		s.mu.Unlock()

		switch kind {
		case tree.Absent:
			return nil, entangleerr.New(entangleerr.KindNotFound, "get", path)
		case tree.ViaCallable:
			fn := node.(tree.Callable)
			res, err := fn(ctx, params)
			if err != nil {
				return nil, entangleerr.Wrap(entangleerr.KindTypeError, "get", path, err)
			}
			currentRoot = res
			remaining = rem
			continue
		default: // tree.Found
			result = node
		}
		break
	}

	if depth, ok := params.(int); ok && depth >= 0 {
		result = tree.Project(result, depth)
	}

	if s.DerefMode() {
		deref, err := tree.Dereference(ctx, result)
		if err != nil {
			return nil, entangleerr.Wrap(entangleerr.KindTypeError, "get", path, err)
		}
		result = deref
	}
	return result, nil
}

// Set replaces (or, if value is nil, removes) the leaf at path. At the
// root, value must be a mapping and replaces the whole tree. Writes
// that would overwrite or shadow an attached mount are rejected.
func (s *Store[R]) Set(ctx context.Context, path string, value any) error {
	return s.write(ctx, message.Set, path, value, 0)
}

// Push appends value to the ordered sequence at path, trimming from
// the head once the sequence exceeds limit (0 means unlimited).
func (s *Store[R]) Push(ctx context.Context, path string, value any, limit int) error {
	return s.write(ctx, message.Push, path, value, limit)
}

func (s *Store[R]) write(ctx context.Context, kind message.Kind, path string, value any, limit int) error {
	s.mu.Lock()
	ns, residual, found := treepath.CommonMount(path, s.namespaceKeysLocked())
	if found {
		if residual == "" {
			// path is exactly the mount point: a write here would
			// replace the remote's whole tree out from under it, which
			// is the same conflict as writing above the mount.
			s.mu.Unlock()
			return entangleerr.New(entangleerr.KindConflictingMount, string(kind), path)
		}
		remote := s.remoteForNamespaceLocked(ns)
		send := s.send
		s.mu.Unlock()
		if send == nil {
			return entangleerr.New(entangleerr.KindInvalidArgument, string(kind), path)
		}
		msg := message.Message{Kind: kind, Path: residual, Value: value}
		if kind == message.Push && limit > 0 {
			msg.Params = map[string]any{"limit": limit}
		}
		return send(ctx, msg, remote)
	}

	for _, ns := range s.namespaceKeysLocked() {
		if treepath.IsBeneath(ns, path) {
			s.mu.Unlock()
			return entangleerr.New(entangleerr.KindConflictingMount, string(kind), path)
		}
	}

	switch kind {
	case message.Set:
		if path == "" {
			m, ok := value.(map[string]any)
			if !ok {
				s.mu.Unlock()
				return entangleerr.New(entangleerr.KindTypeError, "set", path)
			}
			s.tree = m
		} else if err := tree.SetLeaf(s.tree, path, value); err != nil {
			s.mu.Unlock()
			return err
		}
	case message.Push:
		if path == "" {
			s.mu.Unlock()
			return entangleerr.New(entangleerr.KindTypeError, "push", path)
		}
		if err := tree.PushLeaf(s.tree, path, value, limit); err != nil {
			s.mu.Unlock()
			return err
		}
	}

	var matches []*subscription.Link[R]
	for _, l := range s.subs {
		if treepath.IsBeneath(path, l.Path) {
			matches = append(matches, l)
		}
	}
	s.mu.Unlock()

	for _, l := range matches {
		if l.Callback != nil && l.ShouldDeliver() {
			l.Callback(path, value)
		}
	}
	return nil
}

// Subscribe installs a head link at path, invoking cb whenever a set
// or push at path or beneath it fires, throttled to cb firing on the
// 1st and every throttle-th delivery thereafter (throttle < 1 behaves
// as 1). It returns the chain's identifier.
func (s *Store[R]) Subscribe(ctx context.Context, path string, cb func(path string, value any), throttle int) (string, error) {
	id := uuid.NewString()
	if err := s.installLink(ctx, path, subscription.Callback(cb), nil, id, throttle); err != nil {
		return "", err
	}
	return id, nil
}

// installLink resolves path against the mount table to discover a
// downstream (if any), installs the link, and either forwards a
// subscribe message or fires the local onSubscription hook, depending
// on whether a downstream was found. It is shared by Subscribe and
// Receive's subscribe handling, and by Attach's re-homing pass.
func (s *Store[R]) installLink(ctx context.Context, path string, cb subscription.Callback, upstream *R, id string, throttle int) error {
	s.mu.Lock()
	ns, residual, found := treepath.CommonMount(path, s.namespaceKeysLocked())
	var downstream *R
	if found {
		remote := s.remoteForNamespaceLocked(ns)
		downstream = &remote
	}

	kept := s.subs[:0:0]
	for _, l := range s.subs {
		if l.ChainID == id && l.Path == path {
			continue
		}
		kept = append(kept, l)
	}
	link := subscription.New(path, id, upstream, downstream, cb, throttle)
	kept = append(kept, link)
	s.subs = kept
	send := s.send
	s.mu.Unlock()

	if downstream == nil {
		if s.onSubscription != nil {
			s.onSubscription(path, id)
		}
		return nil
	}
	if send == nil {
		return entangleerr.New(entangleerr.KindInvalidArgument, "subscribe", path)
	}
	msg := message.Message{Kind: message.Subscribe, Path: residual, ID: id, Throttle: throttle}
	return send(ctx, msg, *downstream)
}

// forwardingCallback builds the Callback a pass-through link uses: it
// re-emits an Event message toward upstream under the shared chain ID.
func (s *Store[R]) forwardingCallback(remote R, chainID string) subscription.Callback {
	return func(path string, value any) {
		s.mu.Lock()
		send := s.send
		s.mu.Unlock()
		if send == nil {
			return
		}
		msg := message.Message{Kind: message.Event, Path: path, Value: value, ID: chainID}
		if err := send(context.Background(), msg, remote); err != nil {
			s.log.Error("forward event upstream failed", "path", path, "id", chainID, "err", err)
		}
	}
}

// Unsubscribe removes every non-pass-through link matching arg, which
// is interpreted as a chain ID if it parses as a UUID, otherwise as an
// exact path. It returns how many links were removed.
func (s *Store[R]) Unsubscribe(ctx context.Context, arg string) (int, error) {
	_, byID := uuid.Parse(arg)

	s.mu.Lock()
	var targets []*subscription.Link[R]
	for _, l := range s.subs {
		if l.IsPassThrough() {
			continue
		}
		if byID == nil && l.ChainID == arg {
			targets = append(targets, l)
		} else if byID != nil && l.Path == arg {
			targets = append(targets, l)
		}
	}
	s.mu.Unlock()

	if len(targets) == 0 {
		return 0, entangleerr.New(entangleerr.KindNotFound, "unsubscribe", arg)
	}
	return s.removeLinks(ctx, targets), nil
}

// UnsubscribeTree removes every non-pass-through link whose path lies
// at or beneath path. If any link beneath path survives (because it
// was, or became, pass-through, owned by an upstream remote) it
// returns KindPartialFailure alongside the count actually removed.
func (s *Store[R]) UnsubscribeTree(ctx context.Context, path string) (int, error) {
	s.mu.Lock()
	var targets []*subscription.Link[R]
	for _, l := range s.subs {
		if !l.IsPassThrough() && treepath.IsBeneath(l.Path, path) {
			targets = append(targets, l)
		}
	}
	s.mu.Unlock()

	removed := s.removeLinks(ctx, targets)

	s.mu.Lock()
	var remains bool
	for _, l := range s.subs {
		if treepath.IsBeneath(l.Path, path) {
			remains = true
			break
		}
	}
	s.mu.Unlock()

	if remains {
		return removed, entangleerr.New(entangleerr.KindPartialFailure, "unsubscribe_tree", path)
	}
	return removed, nil
}

// removeLinks deletes every link in s.subs sharing a chain ID with any
// of targets, then for each removed link forwards an unsubscribe
// downstream (if it had one) or fires onUnsubscription (if it didn't).
func (s *Store[R]) removeLinks(ctx context.Context, targets []*subscription.Link[R]) int {
	if len(targets) == 0 {
		return 0
	}
	ids := make(map[string]bool, len(targets))
	for _, l := range targets {
		ids[l.ChainID] = true
	}

	s.mu.Lock()
	var removed []*subscription.Link[R]
	kept := s.subs[:0:0]
	for _, l := range s.subs {
		if ids[l.ChainID] {
			removed = append(removed, l)
		} else {
			kept = append(kept, l)
		}
	}
	s.subs = kept
	send := s.send
	s.mu.Unlock()

	for _, l := range removed {
		if l.Downstream != nil {
			if send == nil {
				continue
			}
			msg := message.Message{Kind: message.Unsubscribe, ID: l.ChainID}
			if err := send(ctx, msg, *l.Downstream); err != nil {
				s.log.Error("forward unsubscribe downstream failed", "path", l.Path, "id", l.ChainID, "err", err)
			}
		} else if s.onUnsubscription != nil {
			s.onUnsubscription(l.Path, l.ChainID)
		}
	}
	return len(removed)
}

// Receive applies an inbound message from from (nil if the transport
// cannot identify a sender, only tolerated for kinds that don't need
// one). It is the single entry point transports call with decoded
// bytes.
func (s *Store[R]) Receive(ctx context.Context, msg message.Message, from *R) error {
	switch msg.Kind {
	case message.Set:
		return s.Set(ctx, msg.Path, msg.Value)

	case message.Push:
		limit := 0
		if msg.Params != nil {
			if v, ok := msg.Params["limit"]; ok {
				switch n := v.(type) {
				case int:
					limit = n
				case float64:
					limit = int(n)
				}
			}
		}
		return s.Push(ctx, msg.Path, msg.Value, limit)

	case message.Get:
		if from == nil {
			return entangleerr.New(entangleerr.KindMissingContext, "receive", msg.Path)
		}
		var params any
		if msg.Depth != nil {
			params = *msg.Depth
		} else if msg.Params != nil {
			params = msg.Params
		}
		val, getErr := s.Get(ctx, msg.Path, params)
		s.mu.Lock()
		send := s.send
		s.mu.Unlock()
		if send == nil {
			return entangleerr.New(entangleerr.KindInvalidArgument, "receive", msg.Path)
		}
		reply := message.Message{Kind: message.Value, Path: msg.Path, ID: msg.ID, Value: val}
		if sendErr := send(ctx, reply, *from); sendErr != nil {
			return sendErr
		}
		return getErr

	case message.Value:
		s.mu.Lock()
		ch, ok := s.outstanding[msg.ID]
		if ok {
			delete(s.outstanding, msg.ID)
		}
		s.mu.Unlock()
		if ok {
			ch <- getResult{value: msg.Value}
		}
		return nil

	case message.Event:
		return s.receiveEvent(ctx, msg, from)

	case message.Subscribe:
		if from == nil {
			return entangleerr.New(entangleerr.KindMissingContext, "receive", msg.Path)
		}
		remote := *from
		cb := s.forwardingCallback(remote, msg.ID)
		return s.installLink(ctx, msg.Path, cb, from, msg.ID, msg.Throttle)

	case message.Unsubscribe:
		s.mu.Lock()
		var targets []*subscription.Link[R]
		for _, l := range s.subs {
			if l.ChainID == msg.ID {
				targets = append(targets, l)
			}
		}
		s.mu.Unlock()
		s.removeLinks(ctx, targets)
		return nil

	default:
		return entangleerr.New(entangleerr.KindProtocolError, "receive", msg.Path)
	}
}

func (s *Store[R]) receiveEvent(ctx context.Context, msg message.Message, from *R) error {
	if from == nil {
		return entangleerr.New(entangleerr.KindMissingContext, "receive", msg.Path)
	}
	s.mu.Lock()
	namespace, ok := s.remoteToNamespace[*from]
	send := s.send
	s.mu.Unlock()
	if !ok {
		// The sender is not (or no longer) mounted here, so no link can
		// match its events: reply as for any other orphaned event.
		if send == nil {
			return nil
		}
		return send(ctx, message.Message{Kind: message.Unsubscribe, ID: msg.ID}, *from)
	}

	rewritten := msg.Path
	switch {
	case namespace == "":
		// root-mounted remote: path is already store-absolute.
	case rewritten == "":
		rewritten = namespace
	default:
		rewritten = namespace + "." + rewritten
	}

	s.mu.Lock()
	var matches []*subscription.Link[R]
	for _, l := range s.subs {
		if l.ChainID == msg.ID && treepath.IsBeneath(rewritten, l.Path) {
			matches = append(matches, l)
		}
	}
	send = s.send
	s.mu.Unlock()

	if len(matches) == 0 {
		if send == nil {
			return nil
		}
		return send(ctx, message.Message{Kind: message.Unsubscribe, ID: msg.ID}, *from)
	}

	for _, l := range matches {
		if l.Callback != nil && l.ShouldDeliver() {
			l.Callback(rewritten, msg.Value)
		}
	}
	return nil
}

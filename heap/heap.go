package heap

import (
	"fmt"

	runtimebridge "github.com/wippyai/runtime-bridge"
	"github.com/wippyai/runtime-bridge/errors"
)

// Version is the semver string reported to the bridge's attachment gate.
const Version = "1.1.0"

// Type descriptors preregistered in every heap.
const (
	TypeIDStr   runtimebridge.TypeID = 1
	TypeIDBytes runtimebridge.TypeID = 2
	TypeIDInt   runtimebridge.TypeID = 3
)

// Config adjusts heap construction.
type Config struct {
	// Version overrides the semver string reported to the bridge.
	// Empty means the package Version.
	Version string
}

// Heap is an in-process foreign runtime: a slot table of reference-counted,
// dynamically typed objects with a pending-exception register. It exists for
// tests and tooling that need a runtime whose every reference-count movement
// is observable.
//
// Like the runtime it stands in for, the heap does no locking of its own.
// All access must happen under one lock, which the bridge provides; direct
// use is single-goroutine only.
type Heap struct {
	entries   []entry
	freeList  []runtimebridge.Raw
	types     map[string]runtimebridge.TypeID
	typeNames []string
	observers []observerReg
	obsSeq    uint64
	pending   error
	version   string

	failAllocs int

	created   uint64
	destroyed uint64
	increfs   uint64
	decrefs   uint64
}

type entry struct {
	value any
	typ   runtimebridge.TypeID
	refs  int
	valid bool
}

// New creates a heap with the canonical types registered. A nil cfg means
// defaults.
func New(cfg *Config) *Heap {
	h := &Heap{
		entries:  make([]entry, 0, 64),
		freeList: make([]runtimebridge.Raw, 0, 16),
		types:    make(map[string]runtimebridge.TypeID, 4),
		version:  Version,
	}
	if cfg != nil && cfg.Version != "" {
		h.version = cfg.Version
	}
	h.RegisterType(runtimebridge.TypeStr)
	h.RegisterType(runtimebridge.TypeBytes)
	h.RegisterType("int")
	return h
}

// RegisterType assigns a descriptor to a type name, returning the existing
// descriptor if the name is already registered.
func (h *Heap) RegisterType(name string) runtimebridge.TypeID {
	if id, ok := h.types[name]; ok {
		return id
	}
	h.typeNames = append(h.typeNames, name)
	id := runtimebridge.TypeID(len(h.typeNames))
	h.types[name] = id
	return id
}

// RuntimeVersion implements runtimebridge.VersionReporter.
func (h *Heap) RuntimeVersion() string {
	return h.version
}

// FailNextAlloc makes the next n object creations fail as if the runtime's
// allocator were exhausted. No pending exception is installed; allocation
// failure is signalled by the zero handle alone.
func (h *Heap) FailNextAlloc(n int) {
	h.failAllocs = n
}

// alloc stores a value in a fresh or recycled slot with a reference count
// of one.
func (h *Heap) alloc(typ runtimebridge.TypeID, value any) runtimebridge.Raw {
	if h.failAllocs > 0 {
		h.failAllocs--
		return 0
	}

	e := entry{
		value: value,
		typ:   typ,
		refs:  1,
		valid: true,
	}

	var obj runtimebridge.Raw
	if len(h.freeList) > 0 {
		obj = h.freeList[len(h.freeList)-1]
		h.freeList = h.freeList[:len(h.freeList)-1]
		h.entries[obj-1] = e
	} else {
		h.entries = append(h.entries, e)
		obj = runtimebridge.Raw(len(h.entries))
	}

	h.created++
	h.notify(Event{Type: EventCreated, Handle: obj, TypeID: typ, RefCount: 1})
	return obj
}

// entryOf resolves a handle to its live entry. Handles that were never
// issued or whose object is already destroyed indicate a refcounting bug in
// the caller, and the heap is here to catch exactly those.
func (h *Heap) entryOf(obj runtimebridge.Raw, op string) *entry {
	if obj == 0 || int(obj) > len(h.entries) {
		panic(fmt.Sprintf("heap: %s on invalid handle %d", op, obj))
	}
	e := &h.entries[obj-1]
	if !e.valid {
		panic(fmt.Sprintf("heap: %s on destroyed handle %d", op, obj))
	}
	return e
}

// NewText implements runtimebridge.Runtime. The bytes are copied verbatim
// and not validated.
func (h *Heap) NewText(data []byte) runtimebridge.Raw {
	return h.alloc(TypeIDStr, append([]byte(nil), data...))
}

// NewBuffer implements runtimebridge.Runtime.
func (h *Heap) NewBuffer(data []byte) runtimebridge.Raw {
	return h.alloc(TypeIDBytes, append([]byte(nil), data...))
}

// NewInt stores an integer object. Useful as a third type when exercising
// downcast failures.
func (h *Heap) NewInt(v int64) runtimebridge.Raw {
	return h.alloc(TypeIDInt, v)
}

// IncRef implements runtimebridge.Runtime.
func (h *Heap) IncRef(obj runtimebridge.Raw) {
	e := h.entryOf(obj, "incref")
	e.refs++
	h.increfs++
	h.notify(Event{Type: EventIncRef, Handle: obj, TypeID: e.typ, RefCount: e.refs})
}

// DecRef implements runtimebridge.Runtime. The object is destroyed and its
// slot recycled when the count reaches zero.
func (h *Heap) DecRef(obj runtimebridge.Raw) {
	e := h.entryOf(obj, "decref")
	e.refs--
	h.decrefs++
	h.notify(Event{Type: EventDecRef, Handle: obj, TypeID: e.typ, RefCount: e.refs})

	if e.refs > 0 {
		return
	}

	typ := e.typ
	e.valid = false
	e.value = nil
	e.refs = 0
	h.freeList = append(h.freeList, obj)
	h.destroyed++
	h.notify(Event{Type: EventDestroyed, Handle: obj, TypeID: typ, RefCount: 0})
}

// LookupType implements runtimebridge.Runtime.
func (h *Heap) LookupType(name string) runtimebridge.TypeID {
	return h.types[name]
}

// IsInstance implements runtimebridge.Runtime.
func (h *Heap) IsInstance(obj runtimebridge.Raw, typ runtimebridge.TypeID) bool {
	e := h.entryOf(obj, "isinstance")
	return typ != 0 && e.typ == typ
}

// TypeNameOf implements runtimebridge.TypeNamer.
func (h *Heap) TypeNameOf(obj runtimebridge.Raw) string {
	e := h.entryOf(obj, "typename")
	return h.typeNames[e.typ-1]
}

// TextUTF8 implements runtimebridge.Runtime. The returned slice aliases the
// object's storage and is valid only while the object is alive.
func (h *Heap) TextUTF8(obj runtimebridge.Raw) []byte {
	e := h.entryOf(obj, "text")
	if e.typ != TypeIDStr {
		return nil
	}
	data := e.value.([]byte)
	if data == nil {
		data = []byte{}
	}
	return data
}

// BufferBytes implements runtimebridge.Runtime under the same aliasing rules
// as TextUTF8.
func (h *Heap) BufferBytes(obj runtimebridge.Raw) []byte {
	e := h.entryOf(obj, "buffer")
	if e.typ != TypeIDBytes {
		return nil
	}
	data := e.value.([]byte)
	if data == nil {
		data = []byte{}
	}
	return data
}

// Exception implements runtimebridge.Runtime: fetch and clear.
func (h *Heap) Exception() error {
	p := h.pending
	h.pending = nil
	return p
}

// Raise implements runtimebridge.Runtime, replacing any pending exception.
func (h *Heap) Raise(err error) {
	h.pending = err
}

// RefCount reports the reference count of a live object.
func (h *Heap) RefCount(obj runtimebridge.Raw) (int, bool) {
	if obj == 0 || int(obj) > len(h.entries) {
		return 0, false
	}
	e := h.entries[obj-1]
	if !e.valid {
		return 0, false
	}
	return e.refs, true
}

// Live returns the number of objects currently alive.
func (h *Heap) Live() int {
	count := 0
	for _, e := range h.entries {
		if e.valid {
			count++
		}
	}
	return count
}

// Stats are cumulative counters since construction.
type Stats struct {
	Created   uint64
	Destroyed uint64
	IncRefs   uint64
	DecRefs   uint64
	Live      int
}

// Stats returns a snapshot of the heap's counters.
func (h *Heap) Stats() Stats {
	return Stats{
		Created:   h.created,
		Destroyed: h.destroyed,
		IncRefs:   h.increfs,
		DecRefs:   h.decrefs,
		Live:      h.Live(),
	}
}

// Object describes one live object for inspection.
type Object struct {
	Handle   runtimebridge.Raw
	TypeID   runtimebridge.TypeID
	Type     string
	RefCount int
	Value    any
}

// Each iterates over live objects in handle order until fn returns false.
func (h *Heap) Each(fn func(Object) bool) {
	for i, e := range h.entries {
		if !e.valid {
			continue
		}
		obj := Object{
			Handle:   runtimebridge.Raw(i + 1),
			TypeID:   e.typ,
			Type:     h.typeNames[e.typ-1],
			RefCount: e.refs,
			Value:    e.value,
		}
		if !fn(obj) {
			break
		}
	}
}

// Snapshot returns all live objects in handle order.
func (h *Heap) Snapshot() []Object {
	var objs []Object
	h.Each(func(o Object) bool {
		objs = append(objs, o)
		return true
	})
	return objs
}

// CheckLeaks returns a LeakError listing every object still alive, or nil
// when the heap is empty. Balance tests call it after releasing everything.
func (h *Heap) CheckLeaks() error {
	var leaked []errors.LeakedObject
	h.Each(func(o Object) bool {
		leaked = append(leaked, errors.LeakedObject{
			Handle:   uint64(o.Handle),
			Type:     o.Type,
			RefCount: o.RefCount,
		})
		return true
	})
	if len(leaked) == 0 {
		return nil
	}
	return errors.NewLeakError(leaked)
}

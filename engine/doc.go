// Package engine runs foreign runtimes compiled to WebAssembly and adapts
// them to the boundary interface the bridge attaches to.
//
// A Guest wraps one wazero-instantiated module. The bridge drives it like
// any other runtime; the engine's job is shuttling handles and bytes across
// the linear-memory boundary:
//
//	g, err := engine.New(ctx, wasmBytes, &engine.Config{MemoryLimitPages: 256})
//	if err != nil {
//	    return err
//	}
//	defer g.Close(ctx)
//
//	br, err := bridge.New(g, nil)
//
// # Guest ABI
//
// The module must export its linear memory and the following functions.
// Handles are u64 and 0 always means failure; pointers and lengths are u32
// into the guest's memory.
//
//	bridge_abi_version() -> u32
//	    Packed runtime version: major<<16 | minor<<8 | patch.
//	bridge_alloc(size u32) -> ptr u32
//	    Scratch allocation for host-written bytes. 0 means exhausted.
//	bridge_free(ptr u32, size u32)
//	    Releases a scratch allocation.
//	bridge_new_text(ptr u32, len u32) -> handle u64
//	bridge_new_bytes(ptr u32, len u32) -> handle u64
//	    Create objects from the bytes at ptr. (0, 0) is a valid empty span.
//	bridge_incref(handle u64)
//	bridge_decref(handle u64)
//	bridge_lookup_type(ptr u32, len u32) -> typeid u32
//	    Resolve a type name; 0 means unknown.
//	bridge_is_instance(handle u64, typeid u32) -> u32
//	    Nonzero when the object has the type.
//	bridge_text_utf8(handle u64, retptr u32) -> u32
//	bridge_bytes_data(handle u64, retptr u32) -> u32
//	    Write the object's storage location into the pair block at retptr.
//	    0 means the object has the wrong type.
//	bridge_decode_text(src u64, encptr u32, enclen u32, polptr u32, pollen u32) -> handle u64
//	    Build a text object from a buffer per the named encoding and error
//	    policy. On failure, install a pending exception and return 0.
//	bridge_exc_fetch(retptr u32) -> u32
//	    Fetch and clear the pending exception into two pair blocks at
//	    retptr, category then message. 0 means nothing was pending.
//	bridge_exc_raise(catptr u32, catlen u32, msgptr u32, msglen u32)
//	    Install a pending exception.
//
// A pair block is two little-endian u32 words, pointer then length.
//
// # Memory and Lifetimes
//
// Byte views read through bridge_text_utf8 and bridge_bytes_data alias
// guest memory. They stay valid until the guest runs again or grows its
// memory, which the bridge's locking model guarantees for token-bound
// views. Bytes written by the host go through bridge_alloc scratch blocks
// that are freed within the same boundary call.
//
// # Failure Model
//
// Construction and handshake problems (unreadable module, missing exports)
// come back as errors from New. Once attached, a trapping guest or an
// exhausted guest allocator leaves the runtime's state unknown, so those
// panic with a fatal error; see errors.IsFatal.
package engine

package engine

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	runtimebridge "github.com/wippyai/runtime-bridge"
	"github.com/wippyai/runtime-bridge/errors"
)

// Config holds configuration for guest creation.
type Config struct {
	// MemoryLimitPages sets the maximum guest memory in pages (64KB each).
	// 0 means wazero's default (65536 pages = 4GB).
	// 256 = 16MB, 1024 = 64MB, 4096 = 256MB
	MemoryLimitPages uint32
}

// Guest runs a foreign runtime compiled to WebAssembly and adapts its
// exports to the boundary interface. It is not safe for concurrent use;
// every call must happen under the bridge's lock, which is how the bridge
// drives it anyway.
type Guest struct {
	runtime  wazero.Runtime
	module   api.Module
	mem      api.Memory
	funcs    map[string]api.Function
	stackBuf []uint64
	scratch  uint32 // pair/exception return block inside guest memory
	ctx      context.Context
	version  string
}

// New compiles wasmBytes, instantiates the module and performs the ABI
// handshake: every required export must be present, and the guest's packed
// version is unpacked for the bridge's attachment gate. The context is
// retained for all later guest calls; cancel it only after Close.
func New(ctx context.Context, wasmBytes []byte, cfg *Config) (*Guest, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg != nil && cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	compiled, err := rt.CompileModule(ctx, wasmBytes)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("compile failed: %w", err)
	}

	module, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig())
	if err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("instantiate failed: %w", err)
	}

	g := &Guest{
		runtime:  rt,
		module:   module,
		funcs:    make(map[string]api.Function, len(requiredExports)),
		stackBuf: make([]uint64, 8),
		ctx:      ctx,
	}

	if g.mem = module.Memory(); g.mem == nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("guest exports no memory")
	}

	for _, name := range requiredExports {
		fn := module.ExportedFunction(name)
		if fn == nil {
			_ = rt.Close(ctx)
			return nil, fmt.Errorf("guest does not export %q", name)
		}
		g.funcs[name] = fn
	}

	results, err := g.funcs[ExportABIVersion].Call(ctx)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("abi handshake: %w", err)
	}
	g.version = UnpackVersion(uint32(results[0]))

	results, err = g.funcs[ExportAlloc].Call(ctx, excBlockSize)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("allocate return block: %w", err)
	}
	if results[0] == 0 {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("allocate return block: guest returned null")
	}
	g.scratch = uint32(results[0])

	Logger().Info("guest instantiated",
		zap.String("version", g.version),
		zap.Uint32("memory_bytes", g.mem.Size()))
	return g, nil
}

// Close releases the guest and its runtime. Objects and views from this
// guest are dead afterwards.
func (g *Guest) Close(ctx context.Context) error {
	return g.runtime.Close(ctx)
}

// RuntimeVersion implements runtimebridge.VersionReporter with the version
// unpacked during the handshake.
func (g *Guest) RuntimeVersion() string {
	return g.version
}

// MemorySize reports the guest's current linear memory in bytes.
func (g *Guest) MemorySize() uint32 {
	return g.mem.Size()
}

// invoke calls a guest export with the reused stack buffer. A guest trap
// leaves the runtime's state unknown, which is unrecoverable, so it panics
// as fatal rather than returning.
func (g *Guest) invoke(name string, args ...uint64) uint64 {
	n := len(args)
	if n == 0 {
		n = 1
	}
	stack := g.stackBuf[:n]
	copy(stack, args)
	if err := g.funcs[name].CallWithStack(g.ctx, stack); err != nil {
		panic(errors.Fatal(name, "guest trapped: %v", err))
	}
	return stack[0]
}

// writeBytes copies data into guest scratch memory and returns its address.
// Zero-length data needs no allocation; address 0 with length 0 is valid
// everywhere in the ABI.
func (g *Guest) writeBytes(data []byte) uint32 {
	if len(data) == 0 {
		return 0
	}
	ptr := uint32(g.invoke(ExportAlloc, uint64(len(data))))
	if ptr == 0 {
		panic(errors.Fatal("alloc", "guest failed to allocate %d scratch bytes", len(data)))
	}
	if !g.mem.Write(ptr, data) {
		panic(errors.Fatal("alloc", "write %d bytes at %#x: out of bounds", len(data), ptr))
	}
	return ptr
}

func (g *Guest) freeBytes(ptr uint32, n int) {
	if ptr == 0 || n == 0 {
		return
	}
	g.invoke(ExportFree, uint64(ptr), uint64(n))
}

// readPair reads a pointer/length block the guest filled and returns the
// bytes it names. The slice aliases guest memory: it is valid until the
// guest runs again or grows its memory.
func (g *Guest) readPair(block uint32) []byte {
	ptr, ok := g.mem.ReadUint32Le(block)
	if !ok {
		panic(errors.Fatal("view", "read pair pointer at %#x: out of bounds", block))
	}
	length, ok := g.mem.ReadUint32Le(block + pairLenOff)
	if !ok {
		panic(errors.Fatal("view", "read pair length at %#x: out of bounds", block+pairLenOff))
	}
	if length == 0 {
		return []byte{}
	}
	data, ok := g.mem.Read(ptr, length)
	if !ok {
		panic(errors.Fatal("view", "read %d bytes at %#x: out of bounds", length, ptr))
	}
	return data
}

// NewText implements runtimebridge.Runtime. The bytes pass through a guest
// scratch allocation that is freed before returning.
func (g *Guest) NewText(data []byte) runtimebridge.Raw {
	ptr := g.writeBytes(data)
	h := g.invoke(ExportNewText, uint64(ptr), uint64(len(data)))
	g.freeBytes(ptr, len(data))
	return runtimebridge.Raw(h)
}

// NewBuffer implements runtimebridge.Runtime.
func (g *Guest) NewBuffer(data []byte) runtimebridge.Raw {
	ptr := g.writeBytes(data)
	h := g.invoke(ExportNewBytes, uint64(ptr), uint64(len(data)))
	g.freeBytes(ptr, len(data))
	return runtimebridge.Raw(h)
}

// IncRef implements runtimebridge.Runtime.
func (g *Guest) IncRef(obj runtimebridge.Raw) {
	g.invoke(ExportIncRef, uint64(obj))
}

// DecRef implements runtimebridge.Runtime.
func (g *Guest) DecRef(obj runtimebridge.Raw) {
	g.invoke(ExportDecRef, uint64(obj))
}

// LookupType implements runtimebridge.Runtime.
func (g *Guest) LookupType(name string) runtimebridge.TypeID {
	data := []byte(name)
	ptr := g.writeBytes(data)
	id := g.invoke(ExportLookupType, uint64(ptr), uint64(len(data)))
	g.freeBytes(ptr, len(data))
	return runtimebridge.TypeID(id)
}

// IsInstance implements runtimebridge.Runtime.
func (g *Guest) IsInstance(obj runtimebridge.Raw, typ runtimebridge.TypeID) bool {
	return g.invoke(ExportIsInstance, uint64(obj), uint64(typ)) != 0
}

// TextUTF8 implements runtimebridge.Runtime. The returned slice aliases
// guest memory and is valid until the guest runs again.
func (g *Guest) TextUTF8(obj runtimebridge.Raw) []byte {
	if g.invoke(ExportTextUTF8, uint64(obj), uint64(g.scratch)) == 0 {
		return nil
	}
	return g.readPair(g.scratch)
}

// BufferBytes implements runtimebridge.Runtime under the same aliasing
// rules as TextUTF8.
func (g *Guest) BufferBytes(obj runtimebridge.Raw) []byte {
	if g.invoke(ExportBytesData, uint64(obj), uint64(g.scratch)) == 0 {
		return nil
	}
	return g.readPair(g.scratch)
}

// DecodeText implements runtimebridge.Runtime. Encoding and policy names
// pass through opaquely; the guest owns the codec registry.
func (g *Guest) DecodeText(src runtimebridge.Raw, encoding, policy string) runtimebridge.Raw {
	enc := []byte(encoding)
	pol := []byte(policy)
	encPtr := g.writeBytes(enc)
	polPtr := g.writeBytes(pol)
	h := g.invoke(ExportDecodeText, uint64(src),
		uint64(encPtr), uint64(len(enc)), uint64(polPtr), uint64(len(pol)))
	g.freeBytes(polPtr, len(pol))
	g.freeBytes(encPtr, len(enc))
	return runtimebridge.Raw(h)
}

// Exception implements runtimebridge.Runtime: fetch and clear. The guest
// fills the scratch block with category and message pairs, which are
// copied into host strings before the guest can reuse the storage.
func (g *Guest) Exception() error {
	if g.invoke(ExportExcFetch, uint64(g.scratch)) == 0 {
		return nil
	}
	category := string(g.readPair(g.scratch))
	message := string(g.readPair(g.scratch + pairSize))
	return errors.Foreign(errors.PhaseRuntime, category, message)
}

// Raise implements runtimebridge.Runtime.
func (g *Guest) Raise(err error) {
	if err == nil {
		return
	}
	category := "RuntimeError"
	message := err.Error()
	if be, ok := err.(*errors.Error); ok && be.Category != "" {
		category = be.Category
		if be.Detail != "" {
			message = be.Detail
		}
	}

	cat := []byte(category)
	msg := []byte(message)
	catPtr := g.writeBytes(cat)
	msgPtr := g.writeBytes(msg)
	g.invoke(ExportExcRaise, uint64(catPtr), uint64(len(cat)), uint64(msgPtr), uint64(len(msg)))
	g.freeBytes(msgPtr, len(msg))
	g.freeBytes(catPtr, len(cat))
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/term"

	runtimebridge "github.com/wippyai/runtime-bridge"
	"github.com/wippyai/runtime-bridge/bridge"
	"github.com/wippyai/runtime-bridge/engine"
	"github.com/wippyai/runtime-bridge/heap"
)

func main() {
	var (
		wasmFile    = flag.String("wasm", "", "Attach to a guest runtime image instead of the in-process heap")
		op          = flag.String("op", "", "Operation to run: str, bytes, decode")
		input       = flag.String("in", "", "Input for the operation (\\xNN and \\uNNNN escapes allowed)")
		encoding    = flag.String("encoding", "utf-8", "Source encoding for -op decode")
		policy      = flag.String("policy", "strict", "Decode error policy: strict or replace")
		stats       = flag.Bool("stats", false, "Print runtime counters and exit")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
		debug       = flag.Bool("debug", false, "Enable debug logging")
	)
	flag.Parse()

	if *debug {
		logger, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		bridge.SetLogger(logger)
		engine.SetLogger(logger)
	}

	if *interactive {
		if *wasmFile != "" {
			fmt.Fprintln(os.Stderr, "Error: interactive mode inspects the in-process heap; drop -wasm")
			os.Exit(1)
		}
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: interactive mode requires a terminal")
			os.Exit(1)
		}
		if err := runInteractive(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *op == "" && !*stats {
		fmt.Fprintln(os.Stderr, "Usage: inspect -op <str|bytes|decode> -in <input> [-encoding name] [-policy strict|replace]")
		fmt.Fprintln(os.Stderr, "       inspect -stats")
		fmt.Fprintln(os.Stderr, "       inspect -i  (interactive mode)")
		fmt.Fprintln(os.Stderr, "       inspect -wasm <guest.wasm> ...  (run against a guest runtime)")
		os.Exit(1)
	}

	if err := run(*wasmFile, *op, *input, *encoding, *policy, *stats); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(wasmFile, op, input, encoding, policy string, statsOnly bool) error {
	ctx := context.Background()

	// Pick the runtime: a wasm guest when given, the in-process heap
	// otherwise.
	var rt runtimebridge.Runtime
	var h *heap.Heap
	if wasmFile != "" {
		data, err := os.ReadFile(wasmFile)
		if err != nil {
			return fmt.Errorf("read file: %w", err)
		}
		guest, err := engine.New(ctx, data, nil)
		if err != nil {
			return fmt.Errorf("load guest: %w", err)
		}
		defer guest.Close(ctx)
		fmt.Printf("Runtime: %s (version %s, %d bytes of memory)\n", wasmFile, guest.RuntimeVersion(), guest.MemorySize())
		rt = guest
	} else {
		h = heap.New(nil)
		fmt.Printf("Runtime: in-process heap (version %s)\n", h.RuntimeVersion())
		rt = h
	}

	br, err := bridge.New(rt, nil)
	if err != nil {
		return fmt.Errorf("attach: %w", err)
	}

	if statsOnly {
		printStats(h)
		return nil
	}

	data := parseInput(input)

	switch op {
	case "str":
		err = br.With(func(tok *bridge.Token) error { return runStr(tok, data) })
	case "bytes":
		err = br.With(func(tok *bridge.Token) error { return runBytes(tok, data) })
	case "decode":
		err = br.With(func(tok *bridge.Token) error { return runDecode(tok, data, encoding, policy) })
	default:
		return fmt.Errorf("unknown operation %q (want str, bytes or decode)", op)
	}
	if err != nil {
		return err
	}

	if h != nil {
		fmt.Println()
		printStats(h)
		if leak := h.CheckLeaks(); leak != nil {
			return leak
		}
	}
	return nil
}

func runStr(tok *bridge.Token, data []byte) error {
	owned := bridge.NewStr(tok, string(data))
	defer owned.Close(tok)

	s := owned.Bind(tok)
	fmt.Printf("\nCreated str (handle %d)\n", owned.Ref().Raw())
	fmt.Printf("utf-8: % x\n", s.Bytes())
	text, err := s.Text()
	if err != nil {
		fmt.Printf("text:  %v\n", err)
		fmt.Printf("lossy: %q\n", s.TextLossy())
		return nil
	}
	fmt.Printf("text:  %q\n", text)
	return nil
}

func runBytes(tok *bridge.Token, data []byte) error {
	owned := bridge.NewBytes(tok, data)
	defer owned.Close(tok)

	b := owned.Bind(tok)
	fmt.Printf("\nCreated bytes (handle %d)\n", owned.Ref().Raw())
	fmt.Printf("len:   %d\n", b.Len())
	fmt.Printf("bytes: % x\n", b.Bytes())
	return nil
}

func runDecode(tok *bridge.Token, data []byte, encoding, policy string) error {
	src := bridge.NewBytes(tok, data)
	defer src.Close(tok)

	owned, err := bridge.StrFromEncoded(src.Bind(tok).Object(), encoding, policy)
	if err != nil {
		return fmt.Errorf("decode %s/%s: %w", encoding, policy, err)
	}
	defer owned.Close(tok)

	s := owned.Bind(tok)
	text, err := s.Text()
	if err != nil {
		return err
	}
	fmt.Printf("\nDecoded %d bytes as %s (%s)\n", len(data), encoding, policy)
	fmt.Printf("utf-8: % x\n", s.Bytes())
	fmt.Printf("text:  %q\n", text)
	return nil
}

func printStats(h *heap.Heap) {
	if h == nil {
		fmt.Println("Counters are only available for the in-process heap.")
		return
	}
	s := h.Stats()
	fmt.Printf("created=%d destroyed=%d increfs=%d decrefs=%d live=%d\n",
		s.Created, s.Destroyed, s.IncRefs, s.DecRefs, s.Live)
}

// parseInput interprets Go string escapes so invalid byte sequences can be
// typed on a shell command line. Input that does not parse as a quoted
// literal is taken verbatim.
func parseInput(s string) []byte {
	if unquoted, err := strconv.Unquote(`"` + s + `"`); err == nil {
		return []byte(unquoted)
	}
	return []byte(s)
}

// fletch runs a compiled program snapshot to completion.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/floitschG/fletch/vm"
)

func main() {
	configPath := flag.String("config", "", "path to fletch.toml (defaults built in if omitted)")
	debugAddr := flag.String("debug-addr", "", "wait for a debug session on this address before running (defaults to the config's debug.listen_address)")
	waitForDebugger := flag.Bool("wait-for-debugger", false, "block until a debug session connects before running the snapshot")
	libraryPath := flag.String("library-path", "", "additional FFI shared-library search directory")
	verbose := flag.Bool("v", false, "verbose logging")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: fletch [options] <snapshot-file>\n\n")
		fmt.Fprintf(os.Stderr, "Loads a program snapshot and runs it to completion.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	snapshotPath := flag.Arg(0)

	engine, err := vm.Setup(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fletch: setup: %v\n", err)
		os.Exit(1)
	}
	defer engine.TearDown()

	if *libraryPath != "" {
		engine.Environment().AddDefaultSharedLibrary(*libraryPath)
	}
	if *verbose {
		engine.Environment().AddPrintHook(func(text string) {
			fmt.Fprint(os.Stderr, text)
		})
	}

	var debugger *vm.DebugServer
	if *waitForDebugger {
		debugger, err = engine.WaitForDebuggerConnection(*debugAddr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "fletch: waiting for debugger: %v\n", err)
			os.Exit(1)
		}
	}

	var result vm.Value
	if debugger != nil {
		data, err := os.ReadFile(snapshotPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "fletch: reading %q: %v\n", snapshotPath, err)
			os.Exit(1)
		}
		result, err = engine.RunSnapshot(data, debugger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "fletch: run: %v\n", err)
			os.Exit(1)
		}
	} else {
		result, err = engine.RunSnapshotFromFile(snapshotPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "fletch: run: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Println(describeResult(result))
}

// describeResult renders a terminated root process's exit value for the
// CLI, the same scalar cases DebugServer.writeValueSummary distinguishes
// for a debug session, minus the wire encoding.
func describeResult(v vm.Value) string {
	switch {
	case v == vm.Nil:
		return "null"
	case v == vm.True:
		return "true"
	case v == vm.False:
		return "false"
	case v.IsSmi():
		return fmt.Sprintf("%d", v.SmiValue())
	case v.IsHeapObject():
		h := vm.AsHeapObject(v)
		if h.Class() == nil {
			return "<heap object>"
		}
		return fmt.Sprintf("<%s>", h.Class().Name)
	default:
		return "<failure>"
	}
}

package vm

import (
	"bytes"
	"fmt"
	"net"
)

// Engine is the handle Setup returns: spec.md §6's Native API surface
// (Setup/TearDown/RunSnapshot/RunSnapshotFromFile/WaitForDebuggerConnection)
// bundled as methods rather than free functions so an embedding binary
// (cmd/fletch) can run more than one engine instance in a process without
// package-level mutable state — the same reasoning env.go already applies
// to Environment.
type Engine struct {
	env     *Environment
	natives *NativeRegistry

	debugLn net.Listener
}

// Setup decodes configPath (the empty string uses DefaultConfig's values,
// matching Config.LoadConfig's own fast path) and builds the Environment
// every other Engine method threads through.
func Setup(configPath string) (*Engine, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("vm: Setup: %w", err)
	}
	env := NewEnvironment(cfg)
	for _, lib := range cfg.Library.SearchPath {
		env.AddDefaultSharedLibrary(lib)
	}
	return &Engine{env: env, natives: NewNativeRegistry()}, nil
}

// TearDown closes the debug listener WaitForDebuggerConnection may have
// opened. Safe to call on an Engine that never accepted a debug connection.
func (e *Engine) TearDown() error {
	if e.debugLn == nil {
		return nil
	}
	err := e.debugLn.Close()
	e.debugLn = nil
	return err
}

// Environment exposes the Engine's Environment, for callers (cmd/fletch)
// that want to register shared libraries or print hooks before running a
// snapshot.
func (e *Engine) Environment() *Environment { return e.env }

// WaitForDebuggerConnection opens Config.Debug.ListenAddress (or address,
// if non-empty) and blocks until a debug session connects, returning the
// DebugServer that owns the connection. Spec.md §6: the program does not
// start running until a debugger has attached, so callers that want this
// must call it before RunSnapshot.
func (e *Engine) WaitForDebuggerConnection(address string) (*DebugServer, error) {
	if address == "" {
		address = e.env.Config.Debug.ListenAddress
	}
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("vm: WaitForDebuggerConnection: listening on %q: %w", address, err)
	}
	e.debugLn = ln
	conn, err := ln.Accept()
	if err != nil {
		return nil, fmt.Errorf("vm: WaitForDebuggerConnection: accepting: %w", err)
	}
	return NewDebugServer(e, conn), nil
}

// RunSnapshotFromFile reads path and runs it, per spec.md §6.
func (e *Engine) RunSnapshotFromFile(path string) (Value, error) {
	program := NewProgram()
	if err := ReadSnapshotFile(path, program, e.natives); err != nil {
		return 0, err
	}
	return e.run(program, nil)
}

// RunSnapshot decodes data and drives the resulting program to completion,
// spec.md §6's core entry point. debugger, if non-nil (obtained from
// WaitForDebuggerConnection), is attached to the root process before it
// starts running. Attaching installs a fresh, empty breakpoint set, so
// breakpoints take effect only once set on the attached process.
func (e *Engine) RunSnapshot(data []byte, debugger *DebugServer) (Value, error) {
	program := NewProgram()
	if err := ReadSnapshot(bytes.NewReader(data), program, e.natives); err != nil {
		return 0, err
	}
	return e.run(program, debugger)
}

// run builds the root process from program's EntryFunction, hands it to a
// fresh Scheduler, and blocks until every process the run spawned —
// directly or via Process._spawn — has terminated.
func (e *Engine) run(program *Program, debugger *DebugServer) (Value, error) {
	if program.EntryFunction == nil {
		return 0, fmt.Errorf("vm: run: program has no entry function")
	}
	scheduler := NewScheduler(program, e.env, e.env.Config.Worker.PoolSize)

	root := NewProcess(program, e.env.Config.Heap.InitialMutableWords, e.env)
	stack, _, ok := root.NewStack(program.StackClass, e.env.Config.Stack.InitialFrames)
	if !ok {
		return 0, fmt.Errorf("vm: run: could not allocate the root process's initial stack")
	}
	co := NewCoroutine(program.CoroutineClass, stack)
	root.UpdateCoroutine(co)
	co.PushFrame(newCallFrame(program.EntryFunction, nil, stack, Nil))

	if debugger != nil {
		debugger.Attach(root)
	}

	scheduler.SpawnRoot(root)
	scheduler.Wait()
	return scheduler.RootResult(), nil
}

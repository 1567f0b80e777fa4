package vm

import "github.com/tliron/commonlog"

// Environment bundles the handful of cross-cutting singletons spec.md §9's
// design note says must not become package-level mutable state: the logger,
// the decoded configuration, the shared-library search path consulted by
// AddDefaultSharedLibrary, and the print-interceptor chain run by Print.
// Setup constructs exactly one Environment, keeps it on the Engine and
// passes it to the Scheduler and to every Process it creates.
type Environment struct {
	Config *Config
	Logger commonlog.Logger

	sharedLibraries []string
	printHooks      []PrintHook
}

// PrintHook is a registered print interceptor; Print calls every hook in
// registration order. No native in this package calls Print.
type PrintHook func(text string)

// NewEnvironment builds an Environment from a decoded Config.
func NewEnvironment(cfg *Config) *Environment {
	return &Environment{Config: cfg, Logger: NewLogger("")}
}

// AddDefaultSharedLibrary records a shared-library search path, returned
// by SharedLibraryPaths. The FFI natives (ffi.go) resolve libraries only
// through the Engine's ForeignRegistry and never consult this path.
func (e *Environment) AddDefaultSharedLibrary(path string) {
	e.sharedLibraries = append(e.sharedLibraries, path)
}

// SharedLibraryPaths returns the registered search path, most-recently
// added first (so AddDefaultSharedLibrary calls made later take priority,
// matching the source VM's override-by-prepending behavior).
func (e *Environment) SharedLibraryPaths() []string {
	out := make([]string, len(e.sharedLibraries))
	for i, p := range e.sharedLibraries {
		out[len(out)-1-i] = p
	}
	return out
}

// AddPrintHook registers an interceptor invoked on every call to Print.
func (e *Environment) AddPrintHook(h PrintHook) {
	e.printHooks = append(e.printHooks, h)
}

// Print runs text through every registered hook, falling back to nothing
// (no default stdout write) if at least one hook is registered — matching
// the source VM's "an interceptor takes over the channel" semantics — or
// returns false if none are registered so the caller can apply its own
// default.
func (e *Environment) Print(text string) (handled bool) {
	for _, h := range e.printHooks {
		h(text)
		handled = true
	}
	return handled
}

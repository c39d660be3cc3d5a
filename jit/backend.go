package jit

// NativeFunc executes a compiled function over numeric arguments. A
// non-nil error is always one of the shared runtime sentinels (for
// example bytecode.ErrDivideByZero) so native and interpreted failures
// are indistinguishable to callers.
type NativeFunc func(args []float64) (float64, error)

// Artifact is the executable product of one compilation. Artifacts are
// immutable after Compile returns and safe to invoke concurrently.
type Artifact struct {
	Name     string
	Start    uint32 // function start offset, the identity key
	Checksum uint32 // CRC-32 of the source bytecode at compile time
	OptLevel int
	Size     int    // cache accounting, in bytes
	Version  uint64 // engine-stamped, monotonic per engine
	Arch     string // host architecture at compile time
	Entry    NativeFunc
}

// Invoke runs the artifact. It takes no locks; cached artifacts execute
// concurrently with tracker and cache bookkeeping.
func (a *Artifact) Invoke(args []float64) (float64, error) {
	return a.Entry(args)
}

// Backend turns validated IR into an executable artifact. Implementations
// must preserve interpreter semantics exactly: IEEE-754 arithmetic,
// bytecode.ErrDivideByZero on division or modulo by zero, and 1/0 for
// comparison results.
type Backend interface {
	// Name identifies the backend in logs and stats.
	Name() string
	// Compile produces an artifact at the given optimization level.
	// Levels outside the backend's range clamp rather than fail.
	Compile(prog *Program, optLevel int) (*Artifact, error)
}

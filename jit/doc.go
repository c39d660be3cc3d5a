// Package jit implements tiered execution for the bytecode runtime.
//
// The interpreter in pkg/bytecode remains the source of truth for
// semantics. This package watches call counts through a Tracker,
// translates hot functions over the straight-line numeric subset into a
// validated IR, compiles the IR to directly executable closures through a
// Backend, and keeps the results in a byte-budgeted LRU CodeCache. The
// Engine ties the pieces together behind a single call, NotifyCall: when
// it returns ok the caller uses the native result (including its trap
// errors, which match interpretation exactly), otherwise the caller
// interprets as usual.
//
// Functions that use anything outside the numeric subset are declined
// once and never retried; functions whose artifacts are evicted for
// capacity become eligible again. With a PersistPath configured, compiled
// programs are carried across runs in SQLite and revalidated by bytecode
// checksum on load.
package jit

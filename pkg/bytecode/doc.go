// Package bytecode defines the bytecode format and reference interpreter
// that the hotpath compilation tier plugs into.
//
// The format is designed for:
//   - Compact representation (typically 1-4 bytes per instruction)
//   - Fast decoding (fixed-width opcodes, simple operand formats)
//   - Easy serialization (the "HPBC" container can be stored on disk or
//     passed between processes)
//
// # Architecture Overview
//
// The package consists of several components:
//
//   - Opcodes: ~40 stack-based instructions covering arithmetic, control
//     flow, variable access, function calls, arrays and tagged values
//
//   - Module: a compiled unit with one flat code buffer, a shared constant
//     pool and a function table. Functions are contiguous slices of the
//     code buffer, addressed by byte offset. The byte offset is a
//     function's identity throughout the runtime: profiling counters,
//     the code cache and persisted artifacts are all keyed by it.
//
//   - VM: the reference stack interpreter. It implements every opcode and
//     is the semantic baseline the compilation tier must match exactly.
//
//   - Disassembler: renders modules for debugging.
//
// # Value Model
//
// The interpreter's values are tagged: numbers (IEEE-754 doubles),
// strings, arrays, tagged unions and nil. Booleans are represented as the
// numbers 1 and 0, which keeps comparison results inside the numeric
// model that compiled code shares with the interpreter. The compilation
// tier in package jit handles only the numeric subset; any function that
// touches a non-numeric value falls back here permanently.
//
// # Trap Semantics
//
// Division and modulo by zero raise ErrDivideByZero. Compiled code
// reproduces this exact trap, so program-visible behavior is identical on
// both tiers.
package bytecode

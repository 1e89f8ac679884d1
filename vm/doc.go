// Package vm implements the evaluation core of the field calculus runtime.
//
// This package contains:
//   - The closed Value sum (null, bool, num, str, tuple, field, function)
//   - Tuple, the immutable sequence type, with set algebra and
//     higher-order operations that call back into the evaluator
//   - Field and the neighborhood aggregation operators (HoodOp)
//   - Program, an arena of expression nodes with per-instance annotations
//   - The execution context contract and SimpleContext
//
// Every device evaluates its own Copy of a Program once per round. Copies
// share only immutable node descriptions and values.
package vm

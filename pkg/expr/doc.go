// Package expr implements the restricted expression language used by flow documents.
//
// Expressions appear as ${...} next-screen targets and as router conditions. They are
// parsed with the HCL native syntax and evaluated without any functions, so only
// variable lookup, indexing, comparisons, boolean and arithmetic operators, the
// conditional operator and literals are available. Two top-level variables exist:
// session (the session variables) and, for router conditions, input.
package expr

// Package diff parses multi-file unified diffs into per-file hunks with
// new-file line coordinates.
//
// Every downstream component addresses changed code by new-file line
// numbers exclusively, so the parser computes them from the @@ hunk
// headers while scanning. Malformed hunk headers are a hard parse error:
// a diff that cannot be indexed reliably must fail the task rather than
// produce units with wrong coordinates.
package diff

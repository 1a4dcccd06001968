// Package internal contains helper utilities that are intentionally private
// to mailotp: secure code generation, code hashing, and boundary validation.
//
// # What this package must NOT do
//
//   - Export types that appear in the public mailotp API.
//   - Be imported by any package outside the mailotp module.
package internal

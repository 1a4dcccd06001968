// Package userstore provides a GORM-backed implementation of the engine's
// UserProvider collaborator.
//
// The store enforces the one account-state rule the engine depends on:
// promotion to verified is one-way. MarkVerified on an already-verified user
// is a no-op, and nothing in this package ever moves a user back to pending.
package userstore

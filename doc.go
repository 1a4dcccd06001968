// Package mailotp implements the custom authentication challenge state machine
// for passwordless email-OTP login: an external identity-provider orchestrator
// drives three Engine operations in a loop until authentication succeeds or
// fails: DefineChallenge decides, CreateChallenge issues and dispatches a
// one-time code, and VerifyChallenge checks the submitted code.
//
// The package is designed for short-lived, stateless invocations: Engine
// methods are safe to call from multiple goroutines after initialization
// through [Builder.Build], and every persistent fact (outstanding codes,
// rate-limit events, user records) lives behind a collaborator, never in
// process memory.
//
// # Architecture boundaries
//
// mailotp is the public surface. It exposes [Engine], [Builder], [Config],
// the typed request/response pairs for the three handlers, and the
// [UserProvider] and [Mailer] collaborator interfaces. Code generation,
// hashing, and validation helpers live under internal/ and are never
// exported.
//
// # What this package must NOT do
//
//   - Issue or validate identity tokens. DefineChallenge only signals the
//     orchestrator that tokens should be issued; the token layer is external.
//   - Expose a plaintext code, a code hash, or the Redis record encoding in
//     any response, audit event, or error.
//   - Retry infrastructure failures internally. Store and dispatch errors
//     surface once; the orchestrator owns the retry loop.
package mailotp

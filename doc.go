// Package auth provides mountable account flows (sign up, sign in, Google
// sign in, email activation, password reset) built on signed, purpose scoped
// tokens and a small account state machine.
//
// Tokens:
//   - TokenCodec signs tokens with an asymmetric key (RS*, PS*, ES*, EdDSA).
//     Every token carries a subject, an expiry, and a purpose. Auth tokens omit
//     the purpose claim; activation and reset tokens carry it. A token minted for
//     one purpose is never accepted for another.
//
// Credential store:
//   - CredentialStore is the persistence contract the flows depend on. The bun
//     backed store shipped here keeps users in a single table and hashes with
//     bcrypt, but any implementation honoring the error contract works.
//     Migrate creates that table for sqlite or postgres.
//
// Account lifecycle:
//   - AccountStateMachine owns the pending -> active transition (idempotent)
//     and password changes for active users. Externally provisioned users start
//     active. There is no way back to pending.
//
// Flows and HTTP:
//   - Flows composes the pieces above into request/response operations and
//     translates every failure into one of the exported error kinds.
//   - HTTPController exposes the flows as JSON endpoints; RegisterRoutes mounts
//     them on a go-router router under the configured prefix.
//   - Emails are dispatched as detached tasks; delivery failures are logged and
//     never reach the caller.
package auth

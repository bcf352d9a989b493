// Package members implements the membership state machine and seat
// accounting. Rows move through pending, active, disabled, and the
// terminal reassigned state; every mutation serializes per account,
// recomputes the billable seat count from committed rows, and
// reconciles it against the external subscription ledger.
//
// Billing policy: a seat is charged when the invite is created, not
// when it is accepted. A failed charge rolls the invite back. After
// that point, ledger failures never revoke access; the idempotent
// resync heals drift instead.
package members

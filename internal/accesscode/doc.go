// Package accesscode implements the onboarding code lifecycle:
// generation with quality rejection, ordered validation behind a
// brute-force guard, and exactly-once consumption.
//
// Consumption is a conditional UPDATE whose guards (active, unexpired,
// uses remaining) live in the statement itself, inside a transaction
// shared with the audit record. Validation never mutates code state, so
// a successful Validate is only ever advisory: the race between check
// and use is settled at Consume time.
package accesscode

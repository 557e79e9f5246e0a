// Package policy implements the decision engine: given a resolved
// principal, an action, and a resource, produce an Allow or Deny with a
// reason.
//
// The decision chain is fixed and first-match-wins: archived principals
// lose, admins win (bar the last-admin guard), public resources allow
// reads, tenant standing allows scoped actions, ownership allows owner
// actions, everything else denies. Membership questions route through
// the trust kernel so no predicate re-enters its own guarded path.
//
// Denials on resources inside private or non-active deliberations
// report not_found rather than a distinct forbidden, so probing cannot
// reveal which tenant resources exist.
package policy

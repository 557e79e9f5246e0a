// Package principal holds the canonical identity records of the platform.
//
// A Principal is whoever a request resolved to: a regular user, a
// moderator, or an admin. Role and archive state live here; everything
// about what a principal may DO lives in the policy package. Principals
// are never hard-deleted while audit history references them.
package principal

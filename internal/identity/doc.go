// Package identity resolves request credentials to principals.
//
// Resolution is an ordered chain of independent schemes: access code,
// session token, federated token. The composition lives in wiring, not
// in the resolvers, because credential schemes come and go over a
// platform's life while the policy layer must not notice. Exactly one
// principal comes out of the chain per request, or none at all for an
// anonymous request.
package identity

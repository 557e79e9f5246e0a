// Package deliberation holds the tenant model: deliberations, their
// participant memberships, and the scoped resources (messages, argument
// map nodes and edges, agent configurations, stored files) the policy
// evaluator guards. The Directory maps any scoped resource to the
// deliberation and owner it hangs off, which is all the evaluator needs
// to know about it.
package deliberation

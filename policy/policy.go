// Package policy defines functions that control how connections are made and
// accepted. Listeners filter inbound connections with Allow functions. Dialers
// bound each connection attempt with Timeout functions.
//
// Policy functions are built in a functional style, and are designed to be
// composed together.
//
//	// Allow 8 concurrent connections, and 10 connection attempts per second
//	// per IP address.
//	allow := policy.All(policy.Max(8), policy.RateLimit(10, 10, 1024))
//
//	// Wait 100ms for the first attempt, growing linearly, but never more than
//	// one second.
//	timeout := policy.MaxTimeout(time.Second, policy.LinearBackoff(1.0, policy.ConstantTimeout(100*time.Millisecond)))
//
// The reference node in testutil accepts peers behind an Allow function, and
// the node package polls for readiness with a Timeout function.
package policy

// Package idpool provides connection id allocation as an external capability.
//
// The transport never invents connection ids itself. It asks an IPool for a
// fresh id when a handshake succeeds and hands the id back when the
// connection is destroyed. The default implementation draws ids from
// crypto/rand so that a peer cannot predict the id of another connection, and
// tracks the ids in use in a concurrent map so that one pool can be shared by
// several servers.
package idpool

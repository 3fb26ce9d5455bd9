// Package ir holds the in-memory document tree edited by transactions.
//
// A document is a tree of *Node values. Container nodes link each child
// back to its parent so that any node can report its path. The edit
// functions in this package change a tree in place without telling anyone;
// the model package wraps them with notifications.
package ir

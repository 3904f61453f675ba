// Package chatsync holds the client-side view of a user's conversations.
//
// Pull responses and push events both feed one reducer, Reduce, which
// returns the next State plus the side effects the caller has to run.
// Reduce never mutates its input and never performs I/O, so every merge is a
// single atomic step no matter how network results interleave.
package chatsync

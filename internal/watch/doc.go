// Package watch turns filesystem events under the highlights root into a
// coalesced "something changed" signal.
//
// Every directory under the root is watched, except combined/ and
// processed/ subtrees and hidden directories. A created or written file
// with a fragment extension raises the signal; new directories are added
// to the watch set and also raise it, since a whole scope folder may have
// been moved in. The signal is a single-slot channel: bursts collapse into
// one pending notification that the consumer drains with a full re-scan.
package watch

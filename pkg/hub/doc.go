// Package hub merges producer snapshots and fans them out to subscribers.
//
// The hub is an actor: one Run goroutine owns the latest blink and focus
// snapshots and the subscriber set, and every entry point (Submit, Register,
// Unregister, SendTo, HandleControl, Latest) is a channel hand-off into it.
// Producers never block on subscribers. Submit drops when the queue is full,
// and a subscriber whose Send fails is removed without affecting the others.
//
// Merge rules:
//
//   - A focus score is annotated with the latest blink figures when the camera
//     loop is tracking (face found or not).
//   - Tracking blink snapshots go out standalone as "blink_only" only while
//     no focus stream is active; otherwise they ride along with focus.
//   - Lifecycle snapshots (connected, stopped, error, calibrating) are always
//     broadcast as-is.
package hub

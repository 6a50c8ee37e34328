// Package quote provides the interchangeable quote sources served by the
// QOTD server and the helpers that turn a quote into a reply.
//
// Exactly one Source is active per process. NewSource picks it once from
// the configured mode:
//
//   - Fixed picks uniformly from the twenty Magic 8-Ball answers.
//   - Command runs a shell command per request and replies with its
//     standard output.
//   - File picks uniformly from the lines of a quotes file loaded at
//     start-up, optionally reloaded when the file changes.
//
// A file source that cannot be loaded degrades to Fixed with a warning,
// so a running server always has something to say.
package quote

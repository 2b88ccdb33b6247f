// Package notifications delivers run summaries and events via pluggable
// notifiers.
//
// Two transports are built in: an ntfy publisher posting plain-text messages
// with Title, Tags and Priority headers, and an env-file writer that leaves
// ABS_* shell variables for a host dashboard to source after each run.
// NewService combines whichever are configured and degrades to a no-op when
// neither is. Callers treat delivery as fire-and-forget.
package notifications

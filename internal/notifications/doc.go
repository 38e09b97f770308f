// Package notifications delivers job lifecycle events via ntfy.
//
// The service publishes to the topic configured in config.toml and degrades
// to a no-op when no topic is set, so callers never need to guard the calls.
// All workflow code depends only on the Service interface; swap in another
// transport by implementing it.
package notifications

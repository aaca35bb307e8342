// Package notifications delivers batch outcomes via ntfy.
//
// The default implementation publishes to the topic configured in
// config.toml and degrades to a no-op when no topic is set. Callers depend
// only on the Service interface, so the CLI never carries HTTP glue.
package notifications

// Package notifications delivers batch completion events to an external
// webhook endpoint.
//
// The default implementation POSTs a JSON summary to the URL configured in
// config.toml and gracefully degrades to a no-op when no webhook is
// configured. Delivery is fire-and-forget: the pipeline logs failures and
// never retries, and a failed delivery never alters batch state.
//
// All pipeline code depends only on the Service interface, so alternative
// transports can be swapped in without touching the worker.
package notifications

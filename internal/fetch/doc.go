// Package fetch downloads source image bytes over HTTP.
//
// Every request carries a bounded timeout and a body size cap so a slow or
// hostile source can never stall the processing loop. Failures are ordinary
// error values; the item processor records them and moves on.
package fetch

// Command pixelmill is the CLI for interacting with a running pixelmilld
// daemon over its HTTP API.
package main

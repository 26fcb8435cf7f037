// Package metrics registers the server's Prometheus metrics and exposes
// them over a plain net/http handler. The metrics port is separate from
// the command port: the command port speaks the line-oriented protocol
// of the key/value server and cannot also carry an HTTP scrape endpoint.
package metrics

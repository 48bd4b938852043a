// Package metrics exposes Prometheus instruments for the task cache and the
// expiration engine. Collector implements both taskcache.Observer and
// expiry.Observer so it can be handed to either without adapters.
package metrics

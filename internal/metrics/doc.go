// Package metrics registers the Prometheus collectors exported on /metrics.
//
// Collectors are package-level and registered with the default registry through promauto, so any package can
// record without plumbing a registry. The Record* helpers keep label values consistent across callers.
package metrics

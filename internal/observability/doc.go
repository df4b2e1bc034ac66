// Package observability provides the devflow event log, structured logger
// construction, workflow metrics and alerting. Events are persisted as JSON
// Lines and metrics are derived on demand from the log.
package observability

// Package observability provides structured logging and metrics for the
// portal.
//
// This package implements:
//   - zap loggers configured from the environment
//   - Request ID propagation into log fields
//   - Prometheus counters and histograms for access decisions and
//     identity provider calls
package observability

// Package observability provides structured logging for the exporter and
// SQL agent programs.
//
// Loggers are zap-based. Each program run is tagged with a run ID so that
// the lines of one export or one agent invocation can be grouped.
package observability

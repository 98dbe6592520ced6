// Package tracing wraps OpenTelemetry so that coordination handlers can open
// spans without importing the SDK directly. Until Init is called spans are
// no-ops.
package tracing

// Package zap implements the relay log.Logger facade on top of
// go.uber.org/zap, appending trace correlation fields when the context
// carries an active OpenTelemetry span.
package zap

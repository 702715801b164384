// Package otel publishes tokenguard engine metrics as OpenTelemetry observable
// instruments: one Int64ObservableCounter per counter and one gauge per
// cumulative histogram bucket, all fed by a single snapshot callback.
//
// The caller owns the MeterProvider and passes a Meter in.
package otel

// Package audit records authentication activity in the audit_logs table.
//
// Handlers call Recorder.Record, which never blocks. A single goroutine
// writes events to SQLite and then hands each one to the configured
// sinks (InfluxDB time series, MQTT auth event topics).
package audit

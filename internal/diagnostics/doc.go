// Package diagnostics bridges runtime instrumentation into the trace hub.
//
// Subsystems publish events to named Sources on a process-wide Bus. The
// Bridge subscribes to the sources it was configured for as they appear,
// formats each event's message template with its payload, and routes the
// result to a redacted trace channel at a mapped severity. The bridge is
// optional: when disabled nothing subscribes and emitting stays a no-op
// for unrelated instrumentation.
package diagnostics

// Package tracing provides the host's redacted trace hub.
//
// The hub owns a name-keyed set of trace channels sharing one Zap core.
// Every entry written through any channel passes through the host's secret
// redactor before it reaches a sink, including entries produced by the
// diagnostic bridge. Channels are created lazily and cached for the life
// of the process.
package tracing

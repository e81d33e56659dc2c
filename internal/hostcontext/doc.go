// Package hostcontext is the runtime host of the agent process.
//
// A single Host is constructed at process start and handed to every
// subsystem. It owns the secret redactor, the trace hub, the shutdown
// coordinator, the well-known path resolver, the optional diagnostic
// bridge and the service registry. Services resolved through the registry
// receive the Host back so they can reach paths, tracing and shutdown
// themselves.
package hostcontext

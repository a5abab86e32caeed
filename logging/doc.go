// Package logging provides a minimal logging interface and adapters for ConvoMesh.
//
// The Logger interface defines the standard logging methods (Debug, Info,
// Warn, Error) that the queue, orchestrator and agents use for observability.
// This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - NoOpLogger for silent operation (testing, minimal setups)
//   - ConvoLogger with contextual helpers (conversation, execution, component)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	q := queue.New(process, queue.WithLogger(logger))
//
// The design intentionally keeps the interface minimal to avoid vendor
// lock-in while supporting structured logging where available.
package logging

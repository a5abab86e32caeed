// Package core provides the foundational domain types used by ConvoMesh. It
// defines the core abstractions for:
//
//   - Conversation keys, inbound events and batches (the queue's currency)
//   - ExecutionContext (per-cycle cancellation + deferred side effects)
//   - Task plans and task results (the orchestrator's currency)
//   - The error taxonomy shared by queue, agents and orchestrator
//
// The package intentionally keeps implementation concerns (queue mechanics,
// agent execution, model adapters) out of scope, exposing small types so the
// higher packages stay decoupled from one another.
package core

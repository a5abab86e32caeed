// Package orchestrator turns one batch of conversation events into one
// validated reply.
//
// A cycle runs in three phases: the Planner asks the generation model for a
// staged task plan (degrading to a single default task when the plan is
// structurally invalid), the dispatcher maps task kinds to registered agents
// and runs each stage's tasks concurrently while later stages wait on earlier
// results, and the merger combines the worker outputs into a final corrected
// text through its own bounded correction loop.
//
// A failed or unknown task never fails the cycle; it is simply absent from
// the result set. The orchestrator returns a degraded best-effort reply
// rather than no reply whenever at least one task produced output.
package orchestrator

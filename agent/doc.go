// Package agent provides the bounded-iteration agent framework.
//
// One Agent implements one capability (resolve a scheduling intent, search a
// catalog, draft a reply). The framework separates the capability from the
// control flow: an Agent exposes three operations (an activation gate, one
// generation step and one evaluation step) and the generic Execute driver
// loops generate/evaluate until the evaluation accepts the output or the
// iteration budget is exhausted.
//
// Agents never throw past their own boundary: Execute converts panics and
// iteration errors into a failed Result so a broken agent degrades one task,
// not the whole cycle.
package agent

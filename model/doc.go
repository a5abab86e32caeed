// Package model defines the provider-agnostic abstractions and concrete
// helpers for invoking text-generation models inside ConvoMesh.
//
// Core goals:
//   - One blocking Generate call: (system, prompt, optional tools) → response
//   - Normalize tool / function call representation (ToolDefinition, ToolCall)
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate lightweight mocking for tests (MockModel)
//
// Providers (e.g. OpenAI, Anthropic) implement the Model interface from this
// package so higher layers (agents, orchestrator) remain decoupled from
// vendor SDKs.
package model

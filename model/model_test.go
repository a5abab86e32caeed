package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockModel_ScriptedFIFO(t *testing.T) {
	m := NewMockModel("test", "mock")
	m.EnqueueResponse("first")
	m.EnqueueError(errors.New("second fails"))
	m.EnqueueResponse("third")

	resp, err := m.Generate(context.Background(), Request{Prompt: "a"})
	require.NoError(t, err)
	assert.Equal(t, "first", resp.Text)

	_, err = m.Generate(context.Background(), Request{Prompt: "b"})
	assert.EqualError(t, err, "second fails")

	resp, err = m.Generate(context.Background(), Request{Prompt: "c"})
	require.NoError(t, err)
	assert.Equal(t, "third", resp.Text)

	assert.Len(t, m.Calls(), 3)
}

func TestMockModel_ExactPromptMatch(t *testing.T) {
	m := NewMockModel("test", "mock")
	m.AddResponse("what listings are free?", "none today")

	resp, err := m.Generate(context.Background(), Request{Prompt: "what listings are free?"})
	require.NoError(t, err)
	assert.Equal(t, "none today", resp.Text)

	// Unregistered prompts fall back to an echo.
	resp, err = m.Generate(context.Background(), Request{Prompt: "something else"})
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "something else")
}

func TestMockModel_StructuredDetection(t *testing.T) {
	m := NewMockModel("test", "mock")
	m.EnqueueResponse(`{"tasks": []}`)
	m.EnqueueResponse("plain prose")

	resp, err := m.Generate(context.Background(), Request{Prompt: "plan"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"tasks": []}`, string(resp.Structured))

	resp, err = m.Generate(context.Background(), Request{Prompt: "chat"})
	require.NoError(t, err)
	assert.Nil(t, resp.Structured)
}

func TestMockModel_ContextCancellation(t *testing.T) {
	m := NewMockModel("test", "mock")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Generate(ctx, Request{Prompt: "late"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMockModel_Info(t *testing.T) {
	m := NewMockModel("concierge-mock", "mock")
	info := m.Info()
	assert.Equal(t, "concierge-mock", info.Name)
	assert.Equal(t, "mock", info.Provider)
	assert.True(t, info.SupportsTools)
}

// Package llm provides chat completion backends used to answer learners.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Providers supported by New.
const (
	ProviderOpenAI = "openai"
	ProviderEcho   = "echo"
)

var (
	// ErrEmptyReply is returned when a backend answers with no content.
	ErrEmptyReply = errors.New("completion returned no content")
	// ErrNotConfigured is returned by Unavailable.
	ErrNotConfigured = errors.New("completion provider not configured")
)

// Message is one conversational turn.
type Message struct {
	Role    string // "user" or "assistant"
	Content string
}

// Request is a single completion call.
type Request struct {
	Model       string
	System      string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Completer produces an assistant reply for a request.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// EchoCompleter answers without a model. It is used offline and in tests.
type EchoCompleter struct{}

// Complete returns a deterministic reply built from the last user message.
func (EchoCompleter) Complete(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var last string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role != "assistant" {
			last = req.Messages[i].Content
			break
		}
	}
	last = strings.TrimSpace(last)
	if last == "" {
		return "", ErrEmptyReply
	}
	return fmt.Sprintf("[%s] %s", modelOrDefault(req.Model), last), nil
}

func modelOrDefault(model string) string {
	if model == "" {
		return "echo"
	}
	return model
}

// Unavailable stands in for a provider that could not be configured. Every
// call fails with Err, which should wrap ErrNotConfigured.
type Unavailable struct {
	Err error
}

// Complete returns u.Err.
func (u Unavailable) Complete(context.Context, Request) (string, error) {
	if u.Err == nil {
		return "", ErrNotConfigured
	}
	return "", u.Err
}

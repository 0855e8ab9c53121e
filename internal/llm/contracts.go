// Package llm holds the model-facing plumbing shared by the analysis stages:
// the Generator contract, an OpenAI-compatible chat client and the tolerant
// reply decoder.
package llm

import "context"

// Generator produces a text completion for a single prompt. Every
// model-backed analysis stage depends on this and nothing wider.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a plain function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// ChatCompleter answers a user message under a system instruction.
type ChatCompleter interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

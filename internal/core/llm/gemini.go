// Package llm contains the model providers. The gateway talks to either a
// vLLM endpoint (OpenAI-compatible API) or Gemini, selected by config.
package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/junwei-liu/docgate/internal/core"
)

type GeminiLLM struct {
	client    *genai.Client
	modelName string
}

var _ core.LLMProvider = (*GeminiLLM)(nil)

func NewGeminiLLM(ctx context.Context, apiKey, modelName string) (*GeminiLLM, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	return &GeminiLLM{client: cl, modelName: modelName}, nil
}

func (g *GeminiLLM) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// model maps our message list onto Gemini's split of system instruction,
// prior history and final user part.
func (g *GeminiLLM) model(msgs []core.Message) (*genai.GenerativeModel, []*genai.Content, string) {
	m := g.client.GenerativeModel(g.modelName)

	var history []*genai.Content
	var last string
	for _, msg := range msgs {
		switch msg.Role {
		case "system":
			m.SystemInstruction = &genai.Content{
				Parts: []genai.Part{genai.Text(msg.Content)},
			}
		case "assistant":
			history = append(history, &genai.Content{
				Role:  "model",
				Parts: []genai.Part{genai.Text(msg.Content)},
			})
		default:
			if last != "" {
				history = append(history, &genai.Content{
					Role:  "user",
					Parts: []genai.Part{genai.Text(last)},
				})
			}
			last = msg.Content
		}
	}
	return m, history, last
}

func (g *GeminiLLM) Chat(ctx context.Context, msgs []core.Message) (string, error) {
	m, history, last := g.model(msgs)
	cs := m.StartChat()
	cs.History = history

	resp, err := cs.SendMessage(ctx, genai.Text(last))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String(), nil
}

func (g *GeminiLLM) ChatStream(ctx context.Context, msgs []core.Message, onToken func(string) error) error {
	m, history, last := g.model(msgs)
	cs := m.StartChat()
	cs.History = history

	it := cs.SendMessageStream(ctx, genai.Text(last))
	for {
		resp, err := it.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return fmt.Errorf("gemini stream: %w", err)
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			continue
		}
		for _, p := range resp.Candidates[0].Content.Parts {
			t, ok := p.(genai.Text)
			if !ok {
				continue
			}
			if err := onToken(string(t)); err != nil {
				return err
			}
		}
	}
}

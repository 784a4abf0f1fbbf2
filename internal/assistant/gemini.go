package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiModel implements ChatModel using Google's Gemini API.
type GeminiModel struct {
	client  *genai.Client
	modelID string
}

// NewGeminiModel creates a Gemini-backed chat model.
func NewGeminiModel(ctx context.Context, apiKey, modelID string) (*GeminiModel, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("assistant: gemini api key is required")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("assistant: failed to create gemini client: %w", err)
	}
	return &GeminiModel{client: client, modelID: modelID}, nil
}

// StartChat opens a chat with the tools declared and the history replayed.
func (m *GeminiModel) StartChat(setup Setup) ChatSession {
	model := m.client.GenerativeModel(m.modelID)
	model.SetTemperature(0.2)
	if strings.TrimSpace(setup.System) != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(setup.System))
	}
	if len(setup.Tools) > 0 {
		model.Tools = []*genai.Tool{{FunctionDeclarations: functionDeclarations(setup.Tools)}}
		model.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingAuto},
		}
	}
	cs := model.StartChat()
	cs.History = historyContents(setup.History)
	return &geminiSession{cs: cs}
}

// Close releases resources held by the Gemini client.
func (m *GeminiModel) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}

type geminiSession struct {
	cs *genai.ChatSession
}

func (s *geminiSession) Send(ctx context.Context, text string) (Reply, error) {
	resp, err := s.cs.SendMessage(ctx, genai.Text(text))
	if err != nil {
		return Reply{}, fmt.Errorf("assistant: gemini completion failed: %w", err)
	}
	return replyFrom(resp)
}

func (s *geminiSession) SendToolResults(ctx context.Context, results []ToolResult) (Reply, error) {
	parts := make([]genai.Part, 0, len(results))
	for _, r := range results {
		parts = append(parts, genai.FunctionResponse{Name: r.Name, Response: r.Response})
	}
	resp, err := s.cs.SendMessage(ctx, parts...)
	if err != nil {
		return Reply{}, fmt.Errorf("assistant: gemini completion failed: %w", err)
	}
	return replyFrom(resp)
}

func replyFrom(resp *genai.GenerateContentResponse) (Reply, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return Reply{}, errors.New("assistant: gemini returned no candidates")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		return Reply{}, errors.New("assistant: gemini returned empty content")
	}
	var (
		text  strings.Builder
		calls []ToolCall
	)
	for _, part := range candidate.Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			text.WriteString(string(p))
		case genai.FunctionCall:
			calls = append(calls, ToolCall{Name: p.Name, Args: p.Args})
		case *genai.FunctionCall:
			calls = append(calls, ToolCall{Name: p.Name, Args: p.Args})
		}
	}
	return Reply{Text: strings.TrimSpace(text.String()), Calls: calls}, nil
}

func functionDeclarations(specs []ToolSpec) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(specs))
	for _, spec := range specs {
		schema := &genai.Schema{
			Type:       genai.TypeObject,
			Properties: make(map[string]*genai.Schema, len(spec.Params)),
		}
		for _, p := range spec.Params {
			schema.Properties[p.Name] = &genai.Schema{Type: genai.TypeString, Description: p.Description}
			if p.Required {
				schema.Required = append(schema.Required, p.Name)
			}
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  schema,
		})
	}
	return decls
}

func historyContents(history []Message) []*genai.Content {
	var out []*genai.Content
	for _, msg := range history {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		role := "user"
		if msg.Role == RoleAssistant {
			role = "model"
		}
		out = append(out, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(content)}})
	}
	return out
}

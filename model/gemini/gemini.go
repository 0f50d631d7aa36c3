// Package gemini adapts Google's Gemini models (Gemini API or Vertex AI) to
// the model.Model and model.LiveModel interfaces.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/hupe1980/agentcookbook/core"
	"github.com/hupe1980/agentcookbook/model"
)

// Options configures the Gemini adapter.
type Options struct {
	Model       string
	Temperature *float64
	MaxTokens   int
	APIKey      string
	UseVertexAI bool
	Project     string
	Location    string
	BaseURL     string
}

// Model wraps a genai client.
type Model struct {
	client *genai.Client
	opts   Options
}

func defaultOptions() Options {
	return Options{
		Model:    "gemini-2.0-flash",
		Location: "us-central1",
	}
}

// NewModel creates a Gemini model, constructing the underlying genai client.
func NewModel(ctx context.Context, optFns ...func(o *Options)) (*Model, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	cc := &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if opts.UseVertexAI {
		cc.Backend = genai.BackendVertexAI
		cc.Project = opts.Project
		cc.Location = opts.Location
	}
	if opts.BaseURL != "" {
		cc.HTTPOptions.BaseURL = opts.BaseURL
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &Model{client: client, opts: opts}, nil
}

// NewModelFromClient wraps an existing genai client.
func NewModelFromClient(client *genai.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Info implements model.Model.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:                   m.opts.Model,
		Provider:               "gemini",
		SupportsTools:          true,
		SupportsCodeExecution:  true,
		SupportsLiveConnection: true,
	}
}

// Generate implements model.Model.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		contents, system := toGenaiContents(req.Contents)
		cfg := m.buildConfig(req, system)

		if !req.Stream {
			resp, err := m.client.Models.GenerateContent(ctx, m.opts.Model, contents, cfg)
			if err != nil {
				errCh <- fmt.Errorf("gemini api error: %w", err)
				return
			}
			out <- fromGenaiResponse(resp)
			return
		}

		var (
			parts  []core.Part
			last   *genai.GenerateContentResponse
			finish string
		)
		for chunk, err := range m.client.Models.GenerateContentStream(ctx, m.opts.Model, contents, cfg) {
			if err != nil {
				errCh <- fmt.Errorf("gemini streaming error: %w", err)
				return
			}
			last = chunk

			partial := fromGenaiResponse(chunk)
			if reason := partial.FinishReason; reason != "" && reason != "stop" {
				finish = reason
			}
			parts = appendMerged(parts, partial.Content.Parts...)

			if text := partial.Content.Text(); text != "" {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case out <- model.Response{
					ID:      partial.ID,
					Partial: true,
					Content: core.Content{Role: "assistant", Parts: []core.Part{core.TextPart{Text: text}}},
				}:
				}
			}
		}

		final := model.Response{
			Content:      core.Content{Role: "assistant", Parts: parts},
			FinishReason: finishReason(parts, finish),
		}
		if last != nil {
			final.ID = last.ResponseID
			final.Usage = usageFrom(last.UsageMetadata)
		}
		out <- final
	}()

	return out, errCh
}

func (m *Model) buildConfig(req model.Request, system []string) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}

	var instructions []string
	if req.Instructions != "" {
		instructions = append(instructions, req.Instructions)
	}
	instructions = append(instructions, system...)
	if len(instructions) > 0 {
		cfg.SystemInstruction = genai.NewContentFromText(strings.Join(instructions, "\n\n"), genai.RoleUser)
	}

	temperature := m.opts.Temperature
	if req.Config.Temperature != nil {
		temperature = req.Config.Temperature
	}
	if temperature != nil {
		t := float32(*temperature)
		cfg.Temperature = &t
	}

	maxTokens := m.opts.MaxTokens
	if req.Config.MaxOutputTokens > 0 {
		maxTokens = req.Config.MaxOutputTokens
	}
	if maxTokens > 0 {
		cfg.MaxOutputTokens = int32(maxTokens) //nolint:gosec // bounded by config validation
	}

	cfg.Tools = toGenaiTools(req.Tools, req.CodeExecution)

	return cfg
}

func toGenaiTools(defs []model.ToolDefinition, codeExecution bool) []*genai.Tool {
	var tools []*genai.Tool

	if len(defs) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(defs))
		for _, d := range defs {
			decl := &genai.FunctionDeclaration{
				Name:        d.Function.Name,
				Description: d.Function.Description,
			}
			if d.Function.Parameters != nil {
				decl.ParametersJsonSchema = d.Function.Parameters
			}
			decls = append(decls, decl)
		}
		tools = append(tools, &genai.Tool{FunctionDeclarations: decls})
	}

	if codeExecution {
		tools = append(tools, &genai.Tool{CodeExecution: &genai.ToolCodeExecution{}})
	}

	return tools
}

// toGenaiContents converts history to genai contents. System contents are
// returned separately since Gemini takes them as the system instruction.
func toGenaiContents(contents []core.Content) ([]*genai.Content, []string) {
	var (
		out    []*genai.Content
		system []string
	)

	for _, c := range contents {
		if c.Role == "system" {
			if t := c.Text(); t != "" {
				system = append(system, t)
			}
			continue
		}

		role := genai.RoleUser
		if c.Role == "assistant" || c.Role == genai.RoleModel {
			role = genai.RoleModel
		}

		parts := toGenaiParts(c.Parts)
		if len(parts) == 0 {
			continue
		}

		// Consecutive turns of the same role are merged.
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Parts = append(out[n-1].Parts, parts...)
			continue
		}
		out = append(out, &genai.Content{Role: role, Parts: parts})
	}

	return out, system
}

func toGenaiParts(parts []core.Part) []*genai.Part {
	out := make([]*genai.Part, 0, len(parts))

	for _, p := range parts {
		switch part := p.(type) {
		case core.TextPart:
			if part.Text != "" {
				out = append(out, genai.NewPartFromText(part.Text))
			}
		case core.DataPart:
			if raw, err := json.Marshal(part.Data); err == nil {
				out = append(out, genai.NewPartFromText(string(raw)))
			}
		case core.BlobPart:
			out = append(out, genai.NewPartFromBytes(part.Blob.Data, part.Blob.MIMEType))
		case core.FunctionCallPart:
			out = append(out, &genai.Part{FunctionCall: &genai.FunctionCall{
				ID:   part.FunctionCall.ID,
				Name: part.FunctionCall.Name,
				Args: decodeArgs(part.FunctionCall.Arguments),
			}})
		case core.FunctionResponsePart:
			out = append(out, &genai.Part{FunctionResponse: toGenaiFunctionResponse(part.FunctionResponse)})
		case core.CodeExecutionPart:
			if part.Code != "" {
				out = append(out, genai.NewPartFromExecutableCode(part.Code, genai.Language(languageOrDefault(part.Language))))
			}
			if part.Outcome != "" || part.Output != "" {
				out = append(out, genai.NewPartFromCodeExecutionResult(genai.Outcome(outcomeOrDefault(part.Outcome)), part.Output))
			}
		}
	}

	return out
}

func toGenaiFunctionResponse(fr core.FunctionResponse) *genai.FunctionResponse {
	resp := map[string]any{}
	switch {
	case fr.Error != "":
		resp["error"] = fr.Error
	default:
		if m, ok := fr.Response.(map[string]any); ok {
			resp = m
		} else if fr.Response != nil {
			resp["output"] = fr.Response
		}
	}
	return &genai.FunctionResponse{ID: fr.ID, Name: fr.Name, Response: resp}
}

func decodeArgs(raw string) map[string]any {
	args := map[string]any{}
	if raw == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return map[string]any{"input": raw}
	}
	return args
}

func languageOrDefault(l string) string {
	if l == "" {
		return string(genai.LanguagePython)
	}
	return l
}

func outcomeOrDefault(o string) string {
	if o == "" {
		return string(genai.OutcomeOK)
	}
	return o
}

// fromGenaiParts converts response parts. An executable code part followed
// by its execution result collapses into one CodeExecutionPart.
func fromGenaiParts(parts []*genai.Part) []core.Part {
	var out []core.Part

	for _, p := range parts {
		if p == nil || p.Thought {
			continue
		}
		switch {
		case p.FunctionCall != nil:
			raw, _ := json.Marshal(p.FunctionCall.Args)
			id := p.FunctionCall.ID
			if id == "" {
				id = "call_" + uuid.NewString()
			}
			out = append(out, core.FunctionCallPart{FunctionCall: core.FunctionCall{
				ID:        id,
				Name:      p.FunctionCall.Name,
				Arguments: string(raw),
			}})
		case p.ExecutableCode != nil:
			out = append(out, core.CodeExecutionPart{
				Language: string(p.ExecutableCode.Language),
				Code:     p.ExecutableCode.Code,
			})
		case p.CodeExecutionResult != nil:
			if n := len(out); n > 0 {
				if prev, ok := out[n-1].(core.CodeExecutionPart); ok && prev.Outcome == "" {
					prev.Outcome = string(p.CodeExecutionResult.Outcome)
					prev.Output = p.CodeExecutionResult.Output
					out[n-1] = prev
					continue
				}
			}
			out = append(out, core.CodeExecutionPart{
				Outcome: string(p.CodeExecutionResult.Outcome),
				Output:  p.CodeExecutionResult.Output,
			})
		case p.InlineData != nil:
			out = append(out, core.BlobPart{Blob: core.Blob{Data: p.InlineData.Data, MIMEType: p.InlineData.MIMEType}})
		case p.Text != "":
			out = append(out, core.TextPart{Text: p.Text})
		}
	}

	return out
}

// appendMerged appends parts, joining adjacent text parts and completing a
// trailing code part with a result that arrives in a later chunk.
func appendMerged(dst []core.Part, parts ...core.Part) []core.Part {
	for _, p := range parts {
		n := len(dst)
		if n > 0 {
			switch cur := p.(type) {
			case core.TextPart:
				if prev, ok := dst[n-1].(core.TextPart); ok {
					prev.Text += cur.Text
					dst[n-1] = prev
					continue
				}
			case core.CodeExecutionPart:
				if prev, ok := dst[n-1].(core.CodeExecutionPart); ok && prev.Outcome == "" && cur.Code == "" {
					prev.Outcome = cur.Outcome
					prev.Output = cur.Output
					dst[n-1] = prev
					continue
				}
			}
		}
		dst = append(dst, p)
	}
	return dst
}

func fromGenaiResponse(resp *genai.GenerateContentResponse) model.Response {
	out := model.Response{
		ID:      resp.ResponseID,
		Content: core.Content{Role: "assistant"},
		Usage:   usageFrom(resp.UsageMetadata),
	}

	var reason string
	if len(resp.Candidates) > 0 && resp.Candidates[0] != nil {
		cand := resp.Candidates[0]
		if cand.Content != nil {
			out.Content.Parts = fromGenaiParts(cand.Content.Parts)
		}
		if cand.FinishReason != "" && cand.FinishReason != genai.FinishReasonStop {
			reason = strings.ToLower(string(cand.FinishReason))
		}
	}
	out.FinishReason = finishReason(out.Content.Parts, reason)

	return out
}

func finishReason(parts []core.Part, reason string) string {
	for _, p := range parts {
		if _, ok := p.(core.FunctionCallPart); ok {
			return "tool_calls"
		}
	}
	if reason != "" {
		return reason
	}
	return "stop"
}

func usageFrom(u *genai.GenerateContentResponseUsageMetadata) *model.TokenUsage {
	if u == nil {
		return nil
	}
	return &model.TokenUsage{
		PromptTokens:     int(u.PromptTokenCount),
		CompletionTokens: int(u.CandidatesTokenCount),
		TotalTokens:      int(u.TotalTokenCount),
	}
}

package server

import (
	"bytes"
	"context"
	"io"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/go-go-golems/cardstream/pkg/extract"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"
	"gopkg.in/yaml.v3"
)

// Narrator writes the prose part of a response. emit is called once per
// piece of text, in order.
type Narrator interface {
	Narrate(ctx context.Context, query string, invocation *extract.ToolInvocation, emit func(string) error) error
}

type NarrationInput struct {
	Query   string
	Tool    string
	Status  string
	Message string
	Results []extract.ResultRecord
}

func narrationInput(query string, invocation *extract.ToolInvocation) NarrationInput {
	ret := NarrationInput{Query: query, Results: []extract.ResultRecord{}}
	if invocation == nil {
		return ret
	}
	ret.Tool = invocation.Name()
	ret.Results = invocation.Batch()
	if invocation.Result != nil {
		ret.Status = invocation.Result.Status
		ret.Message = invocation.Result.Message
	}
	return ret
}

const DefaultNarrationTemplate = `{{- if not .Tool -}}
I can look up molecules that are similar to a SMILES string. Try asking for something like **molecules similar to CCO**.
{{- else if ne .Status "success" -}}
The {{ .Tool }} did not succeed{{ if .Message }}: {{ .Message }}{{ end }}.
{{- else if not .Results -}}
The {{ .Tool }} found no molecules for "{{ .Query | trunc 80 }}".
{{- else -}}
I ran a **{{ .Tool }}** for "{{ .Query | trunc 80 }}" and found {{ len .Results }} {{ if eq (len .Results) 1 }}molecule{{ else }}molecules{{ end }}.

{{ range $i, $r := .Results -}}
{{ add1 $i }}. ` + "`{{ $r.identifier }}`" + `{{ with $r.info }}{{ with .name }} ({{ . }}){{ end }}{{ end }}{{ with $r.score }}, similarity {{ printf "%.3f" . }}{{ end }}
{{ end -}}
{{ with first .Results }}
The closest match is ` + "`{{ .identifier }}`" + `. Each result is pinned as a card next to this conversation.
{{- end }}
{{- end }}`

// TemplateNarrator renders a text template and emits it word by word.
type TemplateNarrator struct {
	tmpl *template.Template
}

func NewTemplateNarrator(text string) (*TemplateNarrator, error) {
	if text == "" {
		text = DefaultNarrationTemplate
	}
	tmpl, err := template.New("narration").Funcs(sprig.TxtFuncMap()).Parse(text)
	if err != nil {
		return nil, errors.Wrap(err, "could not parse narration template")
	}
	return &TemplateNarrator{tmpl: tmpl}, nil
}

func (n *TemplateNarrator) Narrate(ctx context.Context, query string, invocation *extract.ToolInvocation, emit func(string) error) error {
	var buf bytes.Buffer
	if err := n.tmpl.Execute(&buf, narrationInput(query, invocation)); err != nil {
		return errors.Wrap(err, "could not render narration")
	}

	for _, word := range splitKeepingSpace(buf.String()) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := emit(word); err != nil {
			return err
		}
	}
	return nil
}

// splitKeepingSpace splits s after each run of whitespace, so joining the
// parts gives back s.
func splitKeepingSpace(s string) []string {
	ret := []string{}
	start := 0
	inSpace := false
	for i, r := range s {
		isSpace := r == ' ' || r == '\n' || r == '\t'
		if inSpace && !isSpace {
			ret = append(ret, s[start:i])
			start = i
		}
		inSpace = isSpace
	}
	if start < len(s) {
		ret = append(ret, s[start:])
	}
	return ret
}

const openAISystemPrompt = `You are a chemistry assistant. A similarity search tool already ran for the user's question and its results are shown to the user as cards.
Answer in a few sentences of markdown. Refer to molecules by their SMILES identifier. Do not repeat the raw data.`

// OpenAINarrator streams the narration from a chat completion model.
type OpenAINarrator struct {
	client *go_openai.Client
	model  string
}

func NewOpenAINarrator(apiKey string, baseURL string, model string) *OpenAINarrator {
	config := go_openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if model == "" {
		model = go_openai.GPT3Dot5Turbo
	}
	return &OpenAINarrator{
		client: go_openai.NewClientWithConfig(config),
		model:  model,
	}
}

func (n *OpenAINarrator) messages(query string, invocation *extract.ToolInvocation) ([]go_openai.ChatCompletionMessage, error) {
	in := narrationInput(query, invocation)
	toolReport, err := yaml.Marshal(map[string]interface{}{
		"tool":    in.Tool,
		"status":  in.Status,
		"message": in.Message,
		"results": in.Results,
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not render tool results")
	}

	user := query
	if in.Tool != "" {
		user = query + "\n\nTool results:\n" + string(toolReport)
	}

	return []go_openai.ChatCompletionMessage{
		{Role: go_openai.ChatMessageRoleSystem, Content: openAISystemPrompt},
		{Role: go_openai.ChatMessageRoleUser, Content: user},
	}, nil
}

func (n *OpenAINarrator) Narrate(ctx context.Context, query string, invocation *extract.ToolInvocation, emit func(string) error) error {
	msgs, err := n.messages(query, invocation)
	if err != nil {
		return err
	}

	req := go_openai.ChatCompletionRequest{
		Model:    n.model,
		Messages: msgs,
		Stream:   true,
	}

	stream, err := n.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return errors.Wrap(err, "could not start chat completion stream")
	}
	defer stream.Close()

	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "chat completion stream failed")
		}
		if len(response.Choices) == 0 {
			continue
		}
		delta := response.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		log.Trace().Str("delta", delta).Msg("narration delta")
		if err := emit(delta); err != nil {
			return err
		}
	}
}

package server

import (
	"context"
	"encoding/json"
	"unicode/utf8"

	"github.com/go-go-golems/cardstream/pkg/extract"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Agent produces the raw response text for a query: an optional tool block
// followed by the narration between its markers.
type Agent struct {
	tool      Tool
	narrator  Narrator
	chunkSize int
}

type AgentOption func(*Agent)

func WithTool(tool Tool) AgentOption {
	return func(a *Agent) {
		a.tool = tool
	}
}

// WithChunkSize makes the agent slice everything it emits into pieces of at
// most n bytes. Zero leaves the text as produced.
func WithChunkSize(n int) AgentOption {
	return func(a *Agent) {
		a.chunkSize = n
	}
}

func NewAgent(narrator Narrator, options ...AgentOption) *Agent {
	ret := &Agent{narrator: narrator}
	for _, o := range options {
		o(ret)
	}
	return ret
}

func (a *Agent) Respond(ctx context.Context, query string, emit func(string) error) error {
	logger := zerolog.Ctx(ctx)
	out := a.chunked(emit)

	var invocation *extract.ToolInvocation
	if args, ok := RouteTool(query); ok && a.tool != nil {
		argBytes, err := json.Marshal(args)
		if err != nil {
			return errors.Wrap(err, "could not encode tool arguments")
		}

		invocation, err = a.tool.Call(ctx, argBytes)
		if err != nil {
			logger.Warn().Err(err).Str("tool", a.tool.Definition().Name).Msg("tool call failed")
			invocation = &extract.ToolInvocation{
				Details: &extract.ToolDetails{Name: a.tool.Definition().Name},
				Result:  &extract.ToolResult{Status: "error", Message: err.Error()},
			}
		}

		payload, err := json.Marshal(invocation)
		if err != nil {
			return errors.Wrap(err, "could not encode tool invocation")
		}
		logger.Debug().Str("tool", invocation.Name()).Int("results", len(invocation.Batch())).Msg("tool call done")
		if err := out(extract.ToolBlock(payload)); err != nil {
			return err
		}
	}

	if err := out(extract.NarrationStart); err != nil {
		return err
	}
	if err := a.narrator.Narrate(ctx, query, invocation, out); err != nil {
		return errors.Wrap(err, "narration failed")
	}
	return out(extract.NarrationEnd)
}

func (a *Agent) chunked(emit func(string) error) func(string) error {
	if a.chunkSize <= 0 {
		return emit
	}
	return func(s string) error {
		for len(s) > 0 {
			n := a.chunkSize
			if n >= len(s) {
				n = len(s)
			} else {
				// keep runes whole, the stream carries JSON strings
				for n > 0 && !utf8.RuneStart(s[n]) {
					n--
				}
				if n == 0 {
					_, n = utf8.DecodeRuneInString(s)
				}
			}
			if err := emit(s[:n]); err != nil {
				return err
			}
			s = s[n:]
		}
		return nil
	}
}

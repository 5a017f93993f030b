// Copyright (c) 2025 Promptforge Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package llm

import (
	"context"
	"fmt"

	opencode "github.com/sst/opencode-sdk-go"
	"github.com/sst/opencode-sdk-go/option"
)

// OpencodeProvider talks to a local `opencode serve` instance over its SDK.
// Each Generate call runs one prompt turn in a session; stages that need
// conversational context pass the session back in.
type OpencodeProvider struct {
	sdk     *opencode.Client
	baseURL string
	model   string
}

// NewOpencodeProvider creates a provider against the given server URL.
// No API key is needed for local connections.
func NewOpencodeProvider(baseURL, defaultModel string) *OpencodeProvider {
	sdk := opencode.NewClient(
		option.WithBaseURL(baseURL),
	)
	return &OpencodeProvider{
		sdk:     sdk,
		baseURL: baseURL,
		model:   defaultModel,
	}
}

// BaseURL returns the server URL this provider is connected to.
func (p *OpencodeProvider) BaseURL() string {
	return p.baseURL
}

// Generate runs one prompt turn and concatenates the text parts of the
// reply. Session creation failures and prompt failures surface unwrapped;
// the Retrying wrapper classifies them.
func (p *OpencodeProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	sessionID := req.Session
	if sessionID == "" {
		session, err := p.sdk.Session.New(ctx, opencode.SessionNewParams{
			Title: opencode.F(fmt.Sprintf("promptforge %s", req.Stage)),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create session: %w", err)
		}
		sessionID = session.ID
	}

	prompt := req.FullPrompt()
	if req.System != "" {
		prompt = req.System + "\n\n" + prompt
	}

	parts := []opencode.SessionPromptParamsPartUnion{
		opencode.TextPartInputParam{
			Type: opencode.F(opencode.TextPartInputTypeText),
			Text: opencode.F(prompt),
		},
	}
	promptParams := opencode.SessionPromptParams{
		Parts: opencode.F(parts),
	}

	model := req.Model
	if model == "" {
		model = p.model
	}
	if model != "" {
		promptParams.Model = opencode.F(opencode.SessionPromptParamsModel{
			ModelID: opencode.F(model),
		})
	}

	message, err := p.sdk.Session.Prompt(ctx, sessionID, promptParams)
	if err != nil {
		return nil, fmt.Errorf("failed to send prompt: %w", err)
	}

	var text string
	for _, part := range message.Parts {
		if part.Type == opencode.PartTypeText {
			text += part.Text
		}
	}

	return &Response{Text: text, Session: sessionID}, nil
}

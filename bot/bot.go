// Package bot wraps the Gemini API behind the Responder contract: one
// logical conversation per user for multi-turn coherence, and no way to
// fail — any internal error degrades to a fixed fallback string.
package bot

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// Fallback is what the bot says when the real model is unreachable.
const Fallback = "Sorry, I'm having trouble connecting to my brain right now. Please try again later."

const systemInstruction = "You are a helpful and friendly chat bot integrated into a chat application. Keep your responses concise and conversational."

type Gemini struct {
	apiKey string
	model  string
	logger *zap.Logger

	mu     sync.Mutex
	client *genai.Client
	chats  map[string]*genai.Chat
}

// NewGemini builds the adapter without touching the network. The client is
// created on first use so a missing or bad key surfaces as the fallback
// reply, never as a startup failure.
func NewGemini(apiKey, model string, logger *zap.Logger) *Gemini {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gemini{
		apiKey: apiKey,
		model:  model,
		logger: logger,
		chats:  make(map[string]*genai.Chat),
	}
}

// Respond sends prompt on the conversation identified by conversationID,
// creating the conversation on first use. Conversations are retained for
// the process lifetime.
func (g *Gemini) Respond(ctx context.Context, prompt, conversationID string) string {
	g.mu.Lock()
	chat, err := g.chatLocked(ctx, conversationID)
	g.mu.Unlock()
	if err != nil {
		g.logger.Warn("gemini unavailable", zap.Error(err))
		return Fallback
	}

	result, err := chat.SendMessage(ctx, genai.Part{Text: prompt})
	if err != nil {
		g.logger.Warn("gemini request failed", zap.Error(err))
		return Fallback
	}

	text := result.Text()
	if text == "" {
		return Fallback
	}
	return text
}

func (g *Gemini) chatLocked(ctx context.Context, conversationID string) (*genai.Chat, error) {
	if chat, ok := g.chats[conversationID]; ok {
		return chat, nil
	}

	if g.client == nil {
		if g.apiKey == "" {
			return nil, errors.New("GEMINI_API_KEY not set")
		}
		client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: g.apiKey})
		if err != nil {
			return nil, err
		}
		g.client = client
	}

	chat, err := g.client.Chats.Create(ctx, g.model, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
	}, nil)
	if err != nil {
		return nil, err
	}

	g.chats[conversationID] = chat
	return chat, nil
}

package ai

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/otonoha/academy-backend/internal/reqctx"
	"google.golang.org/genai"
)

// CompanionClient generates AI-companion replies for students. Each reply is
// paid for in points before this client is invoked; a failure here is
// refunded by the caller.
type CompanionClient struct {
	model string
}

func NewCompanionClient() *CompanionClient {
	model := os.Getenv("GEMINI_COMPANION_MODEL")
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &CompanionClient{model: model}
}

const companionPrompt = `あなたは音楽教室の生徒を励ますAIコンパニオンです。
練習の相談、楽典の質問、モチベーションの話題に、明るく簡潔に日本語で答えてください。
生徒を否定せず、次の練習につながる具体的な一歩を必ず一つ提案してください。`

// Reply sends one student message and returns the companion's answer.
func (c *CompanionClient) Reply(ctx context.Context, message string) (string, error) {
	rid := reqctx.RID(ctx)
	start := time.Now()

	client, err := genai.NewClient(ctx, nil)
	if err != nil {
		log.Printf("[chat] rid=%s stage=client_init err=%v", rid, err)
		return "", err
	}

	parts := []*genai.Part{
		genai.NewPartFromText(companionPrompt),
		genai.NewPartFromText(message),
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}
	temp := float32(0.7)
	config := &genai.GenerateContentConfig{
		Temperature: &temp,
	}

	log.Printf("[chat] rid=%s stage=gemini_start model=%s", rid, c.model)
	res, err := client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		log.Printf("[chat] rid=%s stage=gemini_fail model=%s err=%v", rid, c.model, err)
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	text := res.Text()
	if text == "" {
		log.Printf("[chat] rid=%s stage=empty_reply model=%s", rid, c.model)
		return "", fmt.Errorf("gemini returned an empty reply")
	}
	log.Printf("[chat] rid=%s stage=done model=%s len=%d totalMs=%d",
		rid, c.model, len(text), time.Since(start).Milliseconds())
	return text, nil
}

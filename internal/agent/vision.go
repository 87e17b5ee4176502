package agent

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// DigitCharset restricts recognition to decimal digits
const DigitCharset = "0123456789"

// OCR recognizes text in an image, restricted to charset
type OCR interface {
	Recognize(ctx context.Context, image []byte, charset string) (string, error)
}

// DisabledOCR never recognizes anything, which routes keypad entry to the
// manual fallback.
type DisabledOCR struct{}

// Recognize implements OCR
func (DisabledOCR) Recognize(context.Context, []byte, string) (string, error) {
	return "", nil
}

// VisionOCR reads glyphs with an OpenAI vision model
type VisionOCR struct {
	client *openai.Client
	model  string
}

// NewVisionOCR creates a vision OCR engine. An empty apiKey falls back to
// OPENAI_API_KEY.
func NewVisionOCR(apiKey, model string) (*VisionOCR, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &VisionOCR{client: openai.NewClient(apiKey), model: model}, nil
}

// NewOCR returns a VisionOCR when enabled and configured, DisabledOCR otherwise
func NewOCR(enabled bool, apiKey, model string) (OCR, error) {
	if !enabled {
		return DisabledOCR{}, nil
	}
	v, err := NewVisionOCR(apiKey, model)
	if err != nil {
		return DisabledOCR{}, err
	}
	return v, nil
}

// Recognize implements OCR
func (v *VisionOCR) Recognize(ctx context.Context, image []byte, charset string) (string, error) {
	prompt := fmt.Sprintf(`The image is one key of an on-screen keypad.
Reply with the characters printed on the key, using only characters from this set: %s
If the key shows no such character, reply with an empty line. Reply with nothing else.`, charset)

	resp, err := v.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: v.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: prompt},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    "data:image/png;base64," + base64.StdEncoding.EncodeToString(image),
							Detail: openai.ImageURLDetailLow,
						},
					},
				},
			},
		},
		MaxTokens:   5,
		Temperature: 0,
	})
	if err != nil {
		return "", NewRecognitionError("vision API call failed", err)
	}
	if len(resp.Choices) == 0 {
		return "", NewRecognitionError("no response from vision API", nil)
	}

	return restrictCharset(resp.Choices[0].Message.Content, charset), nil
}

// restrictCharset strips code fences and drops characters outside charset
func restrictCharset(s, charset string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(charset, r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

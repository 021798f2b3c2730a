package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/reelami/reelads/internal/models"
)

type OpenAIService struct {
	client *openai.Client
}

func NewOpenAIService(apiKey string) *OpenAIService {
	return &OpenAIService{
		client: openai.NewClient(apiKey),
	}
}

// adScript is the structured output expected from the script model.
type adScript struct {
	Title  string `json:"title"`
	Script string `json:"script"`
}

// GenerateScript produces the spoken ad script for a product given the
// project's creative brief.
func (s *OpenAIService) GenerateScript(ctx context.Context, product *models.Product, config *models.VideoConfiguration) (string, error) {
	systemPrompt := buildScriptSystemPrompt(config)
	userPrompt := buildScriptUserPrompt(product, config)

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: openai.GPT4o,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: userPrompt,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.8,
	})
	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from openai")
	}

	rawContent := resp.Choices[0].Message.Content

	var script adScript
	if err := json.Unmarshal([]byte(rawContent), &script); err != nil {
		log.Printf("[OpenAI script] parse failed: %v, raw response: %s", err, truncateString(rawContent, 2000))
		return "", fmt.Errorf("failed to parse script: %w", err)
	}

	if strings.TrimSpace(script.Script) == "" {
		return "", fmt.Errorf("script generation returned empty script")
	}

	log.Printf("[OpenAI script] script generated (title=%q, %d chars)", script.Title, len(script.Script))

	return script.Script, nil
}

func buildScriptSystemPrompt(config *models.VideoConfiguration) string {
	var sb strings.Builder
	sb.WriteString("You are a direct-response copywriter for short vertical video ads. ")
	sb.WriteString("Write a spoken voice-over script a single presenter reads to camera. ")
	sb.WriteString("No scene directions, no emoji, no hashtags — only the words to be spoken. ")
	sb.WriteString(fmt.Sprintf("The read must fit %d seconds at a natural pace (~2.5 words/sec). ", config.DurationSeconds))
	sb.WriteString(`Respond with a JSON object: {"title": "...", "script": "..."}.`)
	return sb.String()
}

func buildScriptUserPrompt(product *models.Product, config *models.VideoConfiguration) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Product: %s\nDescription: %s\n", product.Name, product.Description))
	if product.ProductLink != nil {
		sb.WriteString(fmt.Sprintf("Link: %s\n", *product.ProductLink))
	}
	sb.WriteString(fmt.Sprintf("Target audience: %s\n", config.TargetAudience))
	sb.WriteString(fmt.Sprintf("Creative direction: %s\n", config.Direction))
	sb.WriteString(fmt.Sprintf("Call to action: %s\n", config.CTA))
	return sb.String()
}

// ---------------------------------------------------------------------------
// Whisper Transcription — word-level timestamps for caption burn-in
// ---------------------------------------------------------------------------

// WordTimestamp represents a single word with its precise timing from Whisper.
type WordTimestamp struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"` // seconds
	End   float64 `json:"end"`   // seconds
}

// TranscribeAudio sends audio to OpenAI Whisper and returns word-level
// timestamps. The audio bytes should be the raw TTS output.
func (s *OpenAIService) TranscribeAudio(ctx context.Context, audioData []byte, language string) ([]WordTimestamp, error) {
	if language == "" {
		language = "en"
	}

	resp, err := s.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		Reader:   bytes.NewReader(audioData),
		FilePath: "audio.mp3", // Filename hint for the API (required by the library)
		Format:   openai.AudioResponseFormatVerboseJSON,
		Language: language,
		TimestampGranularities: []openai.TranscriptionTimestampGranularity{
			openai.TranscriptionTimestampGranularityWord,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("whisper transcription failed: %w", err)
	}

	if len(resp.Words) == 0 {
		return nil, fmt.Errorf("whisper returned no word timestamps (text: %q)", resp.Text)
	}

	words := make([]WordTimestamp, len(resp.Words))
	for i, w := range resp.Words {
		words[i] = WordTimestamp{
			Word:  strings.TrimSpace(w.Word),
			Start: w.Start,
			End:   w.End,
		}
	}

	log.Printf("[Whisper] Transcribed %d words (duration: %.1fs, text: %q)",
		len(words), resp.Duration, truncateString(resp.Text, 80))

	return words, nil
}

// ---------------------------------------------------------------------------
// OpenAI TTS provider
// ---------------------------------------------------------------------------

// OpenAITTSService converts text to speech via the OpenAI audio API.
type OpenAITTSService struct {
	client *openai.Client
}

// Ensure OpenAITTSService implements TTSService at compile time.
var _ TTSService = (*OpenAITTSService)(nil)

func NewOpenAITTSService(apiKey string) *OpenAITTSService {
	return &OpenAITTSService{
		client: openai.NewClient(apiKey),
	}
}

// GenerateSpeech converts text to speech using OpenAI TTS.
// voiceIdentifier is one of the OpenAI voice names ("alloy", "nova", ...).
func (s *OpenAITTSService) GenerateSpeech(ctx context.Context, text, voiceIdentifier string) (*TTSResponse, error) {
	voice := openai.SpeechVoice(voiceIdentifier)
	if voiceIdentifier == "" {
		voice = openai.VoiceNova
	}

	log.Printf("[OpenAI TTS] Generating speech (voice=%s, textLen=%d)", voice, len(text))

	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.TTSModel1HD,
		Input:          text,
		Voice:          voice,
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, fmt.Errorf("openai tts request failed: %w", err)
	}
	defer resp.Close()

	audioData, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read openai tts response: %w", err)
	}

	if len(audioData) == 0 {
		return nil, fmt.Errorf("openai tts returned empty audio")
	}

	log.Printf("[OpenAI TTS] Speech generated (%d bytes)", len(audioData))

	return &TTSResponse{
		AudioData: audioData,
		Format:    "mp3",
	}, nil
}

// truncateString truncates a string to maxLen and appends "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

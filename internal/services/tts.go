package services

import "context"

// ---------------------------------------------------------------------------
// TTSService — common interface for text-to-speech providers
// Both OpenAI and ElevenLabs implement this interface so the worker can use
// whichever provider the selected voice belongs to.
// ---------------------------------------------------------------------------

// TTSResponse is the common response type from any TTS provider.
type TTSResponse struct {
	AudioData []byte
	Format    string // "mp3", "wav", etc.
}

// TTSService is the interface that any TTS provider must implement.
type TTSService interface {
	// GenerateSpeech converts the script text to audio. voiceIdentifier is
	// the provider-specific voice ID ("nova" for OpenAI, a voice UUID-like
	// string for ElevenLabs).
	GenerateSpeech(ctx context.Context, text, voiceIdentifier string) (*TTSResponse, error)
}

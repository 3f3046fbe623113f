package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

type geminiTranscriber struct {
	gemini        GeminiService
	normalizer    AudioNormalizer
	promptBuilder *PromptBuilder
	log           *zap.Logger
}

// NewGeminiTranscriber returns a TranscriptionProvider backed by Gemini's
// audio understanding. normalizer may be nil.
func NewGeminiTranscriber(gemini GeminiService, normalizer AudioNormalizer, log *zap.Logger) TranscriptionProvider {
	return &geminiTranscriber{
		gemini:        gemini,
		normalizer:    normalizer,
		promptBuilder: NewPromptBuilder(),
		log:           log.Named("transcriber"),
	}
}

// Transcribe implements TranscriptionProvider.
func (t *geminiTranscriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("empty audio payload")
	}

	if t.normalizer != nil {
		normalized, normalizedType, err := t.normalizer.Normalize(ctx, audio, mimeType)
		if err != nil {
			t.log.Warn("audio normalisation failed, sending original", zap.String("mime_type", mimeType), zap.Error(err))
		} else {
			audio, mimeType = normalized, normalizedType
		}
	}

	if mimeType == "" {
		mimeType = "audio/webm"
	}

	text, err := t.gemini.TranscribeAudio(ctx, audio, mimeType, t.promptBuilder.BuildTranscriptionInstruction())
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(text), nil
}

package services

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"alfredoptarigan/interview-engine/internal/metrics"
	"alfredoptarigan/interview-engine/internal/tracing"
)

const (
	speechKind        = "speech"
	defaultPCMRate    = 24000
	pcmBitsPerSample  = 16
	pcmChannels       = 1
	speechMimeTypeWAV = "audio/wav"
)

// SpeechSynthesizer turns question text into playable audio.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, string, error)
}

type geminiSynthesizer struct {
	gemini GeminiService
	voice  string
}

// NewGeminiSynthesizer returns a SpeechSynthesizer backed by Gemini's TTS
// models. Raw PCM output is wrapped as WAV so browsers can play it.
func NewGeminiSynthesizer(gemini GeminiService, voice string) SpeechSynthesizer {
	return &geminiSynthesizer{gemini: gemini, voice: voice}
}

// Synthesize implements SpeechSynthesizer.
func (s *geminiSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, "", fmt.Errorf("empty speech text")
	}

	audio, mimeType, err := s.gemini.SynthesizeSpeech(ctx, text, s.voice)
	if err != nil {
		return nil, "", err
	}

	if rate, ok := pcmRate(mimeType); ok {
		return wavFromPCM(audio, rate), speechMimeTypeWAV, nil
	}
	return audio, mimeType, nil
}

// pcmRate reports whether mimeType is raw 16-bit PCM ("audio/L16;rate=24000"
// or "audio/pcm") and its sample rate.
func pcmRate(mimeType string) (int, bool) {
	parts := strings.Split(mimeType, ";")
	base := strings.ToLower(strings.TrimSpace(parts[0]))
	if base != "audio/l16" && base != "audio/pcm" {
		return 0, false
	}

	rate := defaultPCMRate
	for _, p := range parts[1:] {
		key, value, found := strings.Cut(strings.TrimSpace(p), "=")
		if !found || strings.ToLower(key) != "rate" {
			continue
		}
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			rate = n
		}
	}
	return rate, true
}

func wavFromPCM(pcm []byte, rate int) []byte {
	blockAlign := pcmChannels * pcmBitsPerSample / 8
	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(pcmChannels))
	binary.Write(&buf, binary.LittleEndian, uint32(rate))
	binary.Write(&buf, binary.LittleEndian, uint32(rate*blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(pcmBitsPerSample))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}

// SpokenText is synthesized audio for one question or the introduction.
// Ref is set when the audio was archived.
type SpokenText struct {
	MimeType string
	Data     []byte
	Ref      string
}

// SpeechService voices questions for clients that asked for audio. The
// question text stays authoritative: a failed synthesis only means no audio.
type SpeechService struct {
	synth   SpeechSynthesizer
	archive AudioArchive
	timeout time.Duration
	log     *zap.Logger
	tracer  trace.Tracer
}

// NewSpeechService returns nil when synth is nil, which disables audio
// everywhere. archive may be nil.
func NewSpeechService(synth SpeechSynthesizer, archive AudioArchive, timeout time.Duration, log *zap.Logger) *SpeechService {
	if synth == nil {
		return nil
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &SpeechService{
		synth:   synth,
		archive: archive,
		timeout: timeout,
		log:     log.Named("speech"),
		tracer:  tracing.Tracer(),
	}
}

// Speak synthesizes text for the given turn, turn 0 being the introduction.
// It returns nil when speech is disabled or synthesis fails.
func (s *SpeechService) Speak(ctx context.Context, interviewID uuid.UUID, turnID uint, text string) *SpokenText {
	if s == nil {
		return nil
	}

	ctx, span := s.tracer.Start(ctx, "collaborator."+speechKind, trace.WithAttributes(
		attribute.String("interview.id", interviewID.String()),
		attribute.Int("turn.id", int(turnID)),
	))
	defer span.End()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	started := time.Now()
	audio, mimeType, err := s.synth.Synthesize(ctx, text)
	metrics.ObserveCollaborator(speechKind, started)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "degraded")
		metrics.RecordDegraded(speechKind)
		s.log.Warn("speech synthesis failed, sending text only",
			zap.String("interview_id", interviewID.String()),
			zap.Uint("turn_id", turnID),
			zap.Error(err),
		)
		return nil
	}

	spoken := &SpokenText{MimeType: mimeType, Data: audio}
	if s.archive != nil {
		ref, err := s.archive.Archive(ctx, interviewID, turnID, audio, mimeType)
		if err != nil {
			s.log.Warn("speech archive failed",
				zap.String("interview_id", interviewID.String()),
				zap.Uint("turn_id", turnID),
				zap.Error(err),
			)
		} else {
			spoken.Ref = ref
		}
	}
	return spoken
}

package services

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// AudioNormalizer converts submitted audio into a format the transcription
// provider handles reliably.
type AudioNormalizer interface {
	Normalize(ctx context.Context, audio []byte, mimeType string) ([]byte, string, error)
}

type ffmpegNormalizer struct {
	workDir string
}

func NewFFmpegNormalizer(workDir string) AudioNormalizer {
	return &ffmpegNormalizer{workDir: workDir}
}

// Normalize implements AudioNormalizer. Output is 16 kHz mono WAV.
func (n *ffmpegNormalizer) Normalize(ctx context.Context, audio []byte, mimeType string) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	dir, err := os.MkdirTemp(n.workDir, "audio-*")
	if err != nil {
		return nil, "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "input"+audioExtension(mimeType))
	out := filepath.Join(dir, "output.wav")

	if err := os.WriteFile(in, audio, 0o600); err != nil {
		return nil, "", fmt.Errorf("failed to write audio: %w", err)
	}

	var stderr bytes.Buffer
	cmd := normalizeCommand(ctx, in, out)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, "", fmt.Errorf("ffmpeg conversion failed: %w: %s", err, strings.TrimSpace(lastLine(stderr.String())))
	}

	converted, err := os.ReadFile(out)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read converted audio: %w", err)
	}

	return converted, "audio/wav", nil
}

// normalizeCommand builds the ffmpeg invocation bound to ctx, so a caller's
// timeout kills the process.
func normalizeCommand(ctx context.Context, in, out string) *exec.Cmd {
	compiled := ffmpeg.Input(in).
		Output(out, ffmpeg.KwArgs{
			"ar": "16000",
			"ac": "1",
			"f":  "wav",
		}).
		OverWriteOutput().
		Silent(true).
		Compile()
	return exec.CommandContext(ctx, compiled.Path, compiled.Args[1:]...)
}

func lastLine(s string) string {
	s = strings.TrimRight(s, "\n")
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// AudioArchive keeps the raw audio of spoken answers and returns a reference
// stored on the turn.
type AudioArchive interface {
	Archive(ctx context.Context, interviewID uuid.UUID, turnID uint, audio []byte, mimeType string) (string, error)
}

type localAudioArchive struct {
	storage StorageService
}

func NewLocalAudioArchive(storage StorageService) AudioArchive {
	return &localAudioArchive{storage: storage}
}

func (a *localAudioArchive) Archive(ctx context.Context, interviewID uuid.UUID, turnID uint, audio []byte, mimeType string) (string, error) {
	stored, err := a.storage.SaveBytes(audio, interviewID.String(), "audio", fmt.Sprintf("_%d%s", turnID, audioExtension(mimeType)))
	if err != nil {
		return "", err
	}
	return stored.Path, nil
}

type minioAudioArchive struct {
	client *minio.Client
	bucket string
}

func NewMinioAudioArchive(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (AudioArchive, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &minioAudioArchive{client: client, bucket: bucket}, nil
}

func (a *minioAudioArchive) Archive(ctx context.Context, interviewID uuid.UUID, turnID uint, audio []byte, mimeType string) (string, error) {
	object := fmt.Sprintf("%s/%d_%s%s", interviewID, turnID, uuid.New().String(), audioExtension(mimeType))

	_, err := a.client.PutObject(ctx, a.bucket, object, bytes.NewReader(audio), int64(len(audio)), minio.PutObjectOptions{
		ContentType: mimeType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload audio: %w", err)
	}

	return fmt.Sprintf("s3://%s/%s", a.bucket, object), nil
}

func audioExtension(mimeType string) string {
	switch mimeType {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/ogg":
		return ".ogg"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return ".m4a"
	case "audio/webm", "":
		return ".webm"
	default:
		return ".bin"
	}
}

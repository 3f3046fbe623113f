package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"alfredoptarigan/interview-engine/internal/config"
	"alfredoptarigan/interview-engine/internal/logger"
	"alfredoptarigan/interview-engine/internal/services"
)

// Reference material used to ground generated questions and answer scoring.
var documents = []struct {
	Path    string
	DocType string
	Name    string
}{
	{
		Path:    "./reference_docs/general_question_bank.pdf",
		DocType: services.KnowledgeQuestionBank,
		Name:    "General interview question bank",
	},
	{
		Path:    "./reference_docs/technical_question_bank.pdf",
		DocType: services.KnowledgeQuestionBank,
		Name:    "Technical interview question bank",
	},
	{
		Path:    "./reference_docs/answer_rubric.pdf",
		DocType: services.KnowledgeAnswerRubric,
		Name:    "Answer scoring rubric",
	},
}

func main() {
	cfg := config.Load()
	log := logger.New(logger.Options{File: cfg.Logging.File, Development: true})
	defer log.Sync()

	log.Info("starting knowledge ingestion", zap.String("collection", cfg.Qdrant.Collection))

	geminiService, err := services.NewGeminiService(cfg.Gemini.APIKey, cfg.Gemini.Model, cfg.Gemini.EmbedModel, "", log)
	if err != nil {
		log.Fatal("failed to initialize gemini", zap.Error(err))
	}

	qdrantService, err := services.NewQdrantService(cfg.Qdrant.URL, cfg.Qdrant.APIKey, cfg.Qdrant.Collection)
	if err != nil {
		log.Fatal("failed to initialize qdrant", zap.Error(err))
	}

	ctx := context.Background()
	if err := qdrantService.InitCollection(ctx); err != nil {
		log.Fatal("failed to initialize collection", zap.Error(err))
	}

	pdfParser := services.NewPDFParserService()
	chunker := services.NewTextChunker()

	successCount := 0
	failCount := 0

	for _, doc := range documents {
		docLog := log.With(zap.String("document", doc.Name), zap.String("doc_type", doc.DocType))

		if _, err := os.Stat(doc.Path); os.IsNotExist(err) {
			docLog.Warn("file not found, skipping", zap.String("path", doc.Path))
			failCount++
			continue
		}

		text, err := pdfParser.ExtractText(doc.Path)
		if err != nil {
			docLog.Error("failed to extract text", zap.Error(err))
			failCount++
			continue
		}

		// Re-ingesting replaces the previous chunks of the same file.
		if err := qdrantService.DeleteDocument(ctx, doc.Path); err != nil {
			docLog.Warn("failed to remove previous chunks", zap.Error(err))
		}

		chunks := chunker.ChunkText(services.CleanText(text), 1000, 200)
		stored := 0
		for i, chunk := range chunks {
			embedding, err := geminiService.GenerateEmbedding(ctx, chunk)
			if err != nil {
				docLog.Error("failed to embed chunk", zap.Int("chunk", i+1), zap.Error(err))
				continue
			}
			if err := qdrantService.UpsertChunk(ctx, doc.Path, doc.DocType, chunk, embedding); err != nil {
				docLog.Error("failed to store chunk", zap.Int("chunk", i+1), zap.Error(err))
				continue
			}
			stored++
		}

		docLog.Info("document ingested", zap.Int("chunks", len(chunks)), zap.Int("stored", stored))
		if stored == 0 {
			failCount++
			continue
		}
		successCount++
	}

	fmt.Printf("Ingestion finished: %d succeeded, %d failed\n", successCount, failCount)
	if failCount > 0 {
		os.Exit(1)
	}
}

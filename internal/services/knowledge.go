package services

import (
	"context"
	"fmt"
	"strings"
)

// KnowledgeRetriever finds reference material relevant to an interview.
type KnowledgeRetriever interface {
	Retrieve(ctx context.Context, query string, docTypes []string, limit int) ([]SearchResult, error)
}

type knowledgeRetriever struct {
	gemini GeminiService
	qdrant QdrantService
}

func NewKnowledgeRetriever(gemini GeminiService, qdrant QdrantService) KnowledgeRetriever {
	return &knowledgeRetriever{gemini: gemini, qdrant: qdrant}
}

func (k *knowledgeRetriever) Retrieve(ctx context.Context, query string, docTypes []string, limit int) ([]SearchResult, error) {
	embedding, err := k.gemini.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	results, err := k.qdrant.SearchSimilar(ctx, embedding, docTypes, limit)
	if err != nil {
		return nil, err
	}
	return results, nil
}

// FormatKnowledge renders retrieved chunks for inclusion in a prompt.
func FormatKnowledge(results []SearchResult) string {
	if len(results) == 0 {
		return ""
	}

	parts := make([]string, 0, len(results))
	for i, result := range results {
		parts = append(parts, fmt.Sprintf("--- %s %d (relevance %.2f) ---\n%s",
			result.DocType, i+1, result.Score, strings.TrimSpace(result.Text)))
	}

	return strings.Join(parts, "\n\n")
}

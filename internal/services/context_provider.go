package services

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"alfredoptarigan/interview-engine/internal/models"
	"alfredoptarigan/interview-engine/internal/repositories"
)

const (
	maxCVTextRunes     = 8000
	knowledgeChunkHits = 4
)

// ContextProvider assembles the background passed to collaborators. Every
// source is optional; failures leave the corresponding field empty.
type ContextProvider interface {
	Build(ctx context.Context, subjectID string, job *models.Job) InterviewContext
}

type contextProvider struct {
	docRepo       repositories.DocumentRepository
	pdfParser     PDFParserService
	knowledge     KnowledgeRetriever
	promptBuilder *PromptBuilder
	log           *zap.Logger
}

// NewContextProvider wires the context sources. knowledge may be nil when no
// vector store is configured.
func NewContextProvider(
	docRepo repositories.DocumentRepository,
	pdfParser PDFParserService,
	knowledge KnowledgeRetriever,
	log *zap.Logger,
) ContextProvider {
	return &contextProvider{
		docRepo:       docRepo,
		pdfParser:     pdfParser,
		knowledge:     knowledge,
		promptBuilder: NewPromptBuilder(),
		log:           log.Named("context"),
	}
}

func (p *contextProvider) Build(ctx context.Context, subjectID string, job *models.Job) InterviewContext {
	var ic InterviewContext

	if job != nil {
		ic.JobTitle = job.Title
		ic.JobDescription = job.Description
		ic.JobRequirements = job.Requirements
	}

	ic.CVText = p.cvText(subjectID)

	if p.knowledge != nil {
		query := p.promptBuilder.BuildRetrievalQuery(&ic)
		results, err := p.knowledge.Retrieve(ctx, query, []string{KnowledgeQuestionBank, KnowledgeAnswerRubric}, knowledgeChunkHits)
		if err != nil {
			p.log.Warn("knowledge retrieval failed", zap.String("subject_id", subjectID), zap.Error(err))
		} else {
			ic.Knowledge = FormatKnowledge(results)
		}
	}

	return ic
}

func (p *contextProvider) cvText(subjectID string) string {
	doc, err := p.docRepo.FindLatestBySubject(subjectID, models.DocumentTypeCV)
	if err != nil {
		if !errors.Is(err, repositories.ErrDocumentNotFound) {
			p.log.Warn("cv lookup failed", zap.String("subject_id", subjectID), zap.Error(err))
		}
		return ""
	}

	text, err := p.pdfParser.ExtractText(doc.FilePath)
	if err != nil {
		p.log.Warn("cv parsing failed", zap.String("document_id", doc.ID.String()), zap.Error(err))
		return ""
	}

	return truncate(text, maxCVTextRunes)
}

package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"alfredoptarigan/interview-engine/internal/middleware"
	"alfredoptarigan/interview-engine/internal/models"
	"alfredoptarigan/interview-engine/internal/repositories"
	"alfredoptarigan/interview-engine/internal/services"
)

type UploadHandler struct {
	docRepo        repositories.DocumentRepository
	storageService services.StorageService
	maxFileSize    int64
	log            *zap.Logger
}

func NewUploadHandler(
	docRepo repositories.DocumentRepository,
	storageService services.StorageService,
	maxFileSize int64,
	log *zap.Logger,
) *UploadHandler {
	return &UploadHandler{
		docRepo:        docRepo,
		storageService: storageService,
		maxFileSize:    maxFileSize,
		log:            log.Named("upload_handler"),
	}
}

// HandleUploadCV handles POST /documents/cv. The newest CV of a candidate
// is the one used as interview context.
func (h *UploadHandler) HandleUploadCV(c *fiber.Ctx) error {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		return respondError(c, fiber.StatusUnauthorized, "missing identity")
	}
	candidate, ok := identity.(models.Candidate)
	if !ok {
		return respondError(c, fiber.StatusForbidden, "only candidates can upload a CV")
	}

	cvFile, err := c.FormFile("cv")
	if err != nil {
		return respondError(c, fiber.StatusBadRequest, "missing 'cv' file in multipart form")
	}

	if cvFile.Size > h.maxFileSize {
		return respondError(c, fiber.StatusBadRequest, fmt.Sprintf("CV file too large. Max size: %d bytes", h.maxFileSize))
	}

	stored, err := h.storageService.SaveUpload(cvFile, candidate.ID, models.DocumentTypeCV, ".pdf")
	if err != nil {
		return respondError(c, fiber.StatusBadRequest, fmt.Sprintf("failed to save CV file: %v", err))
	}

	doc := models.Document{
		SubjectID:        candidate.ID,
		Filename:         stored.Name,
		OriginalFileName: cvFile.Filename,
		FileType:         models.DocumentTypeCV,
		FilePath:         stored.Path,
	}

	if err := h.docRepo.Create(&doc); err != nil {
		// Cleanup uploaded file if database insert fails
		if rmErr := h.storageService.Delete(stored.Name); rmErr != nil {
			h.log.Warn("failed to remove orphaned upload", zap.String("filename", stored.Name), zap.Error(rmErr))
		}
		h.log.Error("failed to save CV document record", zap.Error(err))
		return respondError(c, fiber.StatusInternalServerError, "failed to save CV document record")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "CV uploaded successfully",
		"document": models.UploadResponse{
			ID:           doc.ID.String(),
			Filename:     doc.Filename,
			OriginalName: doc.OriginalFileName,
			FileType:     doc.FileType,
		},
	})
}

package services

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"alfredoptarigan/interview-engine/internal/models"
)

const (
	reportSummarySheet   = "Summary"
	reportQuestionsSheet = "Questions"
)

// ReportService renders an interview and its turns as an xlsx workbook.
type ReportService interface {
	Build(interview *models.Interview, questions []models.InterviewQuestion) (*bytes.Buffer, error)
}

type reportService struct{}

func NewReportService() ReportService {
	return &reportService{}
}

func (r *reportService) Build(interview *models.Interview, questions []models.InterviewQuestion) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", reportSummarySheet); err != nil {
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}
	if _, err := f.NewSheet(reportQuestionsSheet); err != nil {
		return nil, fmt.Errorf("failed to create questions sheet: %w", err)
	}

	if err := writeSummarySheet(f, interview, questions); err != nil {
		return nil, fmt.Errorf("failed to write summary sheet: %w", err)
	}
	if err := writeQuestionsSheet(f, questions); err != nil {
		return nil, fmt.Errorf("failed to write questions sheet: %w", err)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return &buf, nil
}

func writeSummarySheet(f *excelize.File, interview *models.Interview, questions []models.InterviewQuestion) error {
	sheet := reportSummarySheet

	if err := f.SetColWidth(sheet, "A", "A", 22); err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "B", "B", 80); err != nil {
		return err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 14, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
	})
	if err != nil {
		return err
	}
	labelStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	wrapStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
	})
	if err != nil {
		return err
	}

	f.SetCellValue(sheet, "A1", "Interview Report")
	f.SetCellStyle(sheet, "A1", "B1", headerStyle)
	f.MergeCell(sheet, "A1", "B1")

	answered := 0
	for _, q := range questions {
		if q.Answered() {
			answered++
		}
	}

	rows := [][2]interface{}{
		{"Interview ID", interview.ID.String()},
		{"Candidate", interview.SubjectID},
		{"Job", deref(interview.JobID, "-")},
		{"Kind", string(interview.Kind)},
		{"Status", string(interview.Status)},
		{"Started", formatTime(interview.StartedAt)},
		{"Ended", formatTime(interview.EndedAt)},
		{"Questions asked", len(questions)},
		{"Questions answered", answered},
		{"Overall score", scoreCell(interview.OverallScore)},
		{"Summary", deref(interview.Summary, "")},
	}

	row := 3
	for _, kv := range rows {
		label := fmt.Sprintf("A%d", row)
		f.SetCellValue(sheet, label, kv[0])
		f.SetCellStyle(sheet, label, label, labelStyle)
		f.SetCellValue(sheet, fmt.Sprintf("B%d", row), kv[1])
		row++
	}
	last := fmt.Sprintf("B%d", row-1)
	return f.SetCellStyle(sheet, last, last, wrapStyle)
}

func writeQuestionsSheet(f *excelize.File, questions []models.InterviewQuestion) error {
	sheet := reportQuestionsSheet
	headers := []string{"#", "Question", "Mandatory", "Answer", "Score", "Feedback", "Answered At"}
	widths := []float64{5, 50, 12, 60, 8, 50, 20}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
	})
	if err != nil {
		return err
	}

	for i, h := range headers {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		f.SetColWidth(sheet, col, col, widths[i])
		f.SetCellValue(sheet, col+"1", h)
	}
	f.SetCellStyle(sheet, "A1", "G1", headerStyle)

	for i, q := range questions {
		row := i + 2
		values := []interface{}{
			i + 1,
			q.QuestionText,
			q.IsMandatory,
			deref(q.AnswerText, transcriptNotAnswered),
			scoreCell(q.Score),
			deref(q.Feedback, ""),
			formatTime(q.AnsweredAt),
		}
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
	}
	return nil
}

func deref(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}

func scoreCell(score *float64) interface{} {
	if score == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f", *score)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}

package services

import (
	"fmt"
	"strings"
)

type PromptBuilder struct{}

func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{}
}

// BuildQuestionPrompt creates the prompt for the opening question or a
// follow-up, depending on qc.IsFirst.
func (pb *PromptBuilder) BuildQuestionPrompt(qc *QuestionContext) string {
	var b strings.Builder

	b.WriteString("You are an experienced interviewer conducting a job interview.\n\n")
	writeInterviewContext(&b, &qc.Context)

	b.WriteString("INTERVIEW SETTINGS:\n")
	fmt.Fprintf(&b, "- Difficulty: %s\n", valueOr(qc.Difficulty, "medium"))
	if len(qc.PersonalityTraits) > 0 {
		fmt.Fprintf(&b, "- Personality traits to assess: %s\n", strings.Join(qc.PersonalityTraits, ", "))
	}
	if len(qc.TechnicalFocus) > 0 {
		fmt.Fprintf(&b, "- Technical focus areas: %s\n", strings.Join(qc.TechnicalFocus, ", "))
	}
	b.WriteString("\n")

	if qc.IsFirst {
		b.WriteString(`Generate the opening question of the interview. It should be welcoming,
let the candidate introduce relevant experience, and relate to the job when one is given.
`)
	} else {
		b.WriteString("CONVERSATION HISTORY:\n")
		for _, qa := range qc.History {
			fmt.Fprintf(&b, "Q: %s\nA: %s\n", qa.Question, valueOr(qa.Answer, "Not answered"))
		}
		b.WriteString(`
Based on the previous questions and answers, generate the next question. It should either
dig deeper where an answer was insufficient, explore a new relevant area, or clarify a
vague point. Do not repeat a question that was already asked.
`)
	}

	b.WriteString(`
Return your response in the following JSON format:
{
  "question_text": "<the question, one or two sentences>"
}`)

	return b.String()
}

// BuildEvaluationPrompt creates the prompt for scoring a single answer.
func (pb *PromptBuilder) BuildEvaluationPrompt(question, answer string, ic *InterviewContext) string {
	var b strings.Builder

	b.WriteString("You are an expert interviewer scoring a candidate's answer.\n\n")
	writeInterviewContext(&b, ic)

	fmt.Fprintf(&b, "QUESTION:\n%s\n\nCANDIDATE ANSWER:\n%s\n\n", question, valueOr(answer, "(no answer given)"))

	b.WriteString(`Score the answer from 0 to 100 considering technical accuracy, communication clarity
and completeness. An empty or off-topic answer scores below 20.

Return your response in the following JSON format:
{
  "score": <0-100>,
  "feedback": "<2-3 sentences explaining the score>"
}`)

	return b.String()
}

// BuildSummaryPrompt creates the prompt for the final assessment.
func (pb *PromptBuilder) BuildSummaryPrompt(sc *SummaryContext) string {
	var b strings.Builder

	b.WriteString("Generate a concise assessment of the following job interview.\n\n")
	writeInterviewContext(&b, &sc.Context)

	fmt.Fprintf(&b, "INTERVIEW TRANSCRIPT:\n%s\n\n", sc.Transcript)

	if len(sc.Scores) > 0 {
		scores := make([]string, len(sc.Scores))
		for i, s := range sc.Scores {
			scores[i] = fmt.Sprintf("%.0f", s)
		}
		fmt.Fprintf(&b, "PER-QUESTION SCORES (0-100): %s\n\n", strings.Join(scores, ", "))
	}

	b.WriteString(`Weigh technical skills, communication, problem solving, experience relevance and
cultural fit. Return your response in the following JSON format:
{
  "overall_score": <0-100>,
  "summary": "<assessment of at most 200 words with strengths, gaps and a hiring recommendation>"
}`)

	return b.String()
}

func (pb *PromptBuilder) BuildTranscriptionInstruction() string {
	return "Transcribe the candidate's spoken interview answer in this audio verbatim. " +
		"Return only the transcription text with no commentary. Return an empty response if nothing is said."
}

// BuildRetrievalQuery creates the knowledge-base query for a session.
func (pb *PromptBuilder) BuildRetrievalQuery(ic *InterviewContext) string {
	if ic.JobTitle == "" && ic.JobDescription == "" {
		return "General interview questions and answer evaluation guidelines"
	}
	return fmt.Sprintf("Interview questions and evaluation criteria for %s. %s", ic.JobTitle, truncate(ic.JobDescription, 1000))
}

func writeInterviewContext(b *strings.Builder, ic *InterviewContext) {
	if ic == nil {
		return
	}
	if ic.JobTitle != "" {
		fmt.Fprintf(b, "JOB TITLE:\n%s\n\n", ic.JobTitle)
	}
	if ic.JobDescription != "" {
		fmt.Fprintf(b, "JOB DESCRIPTION:\n%s\n\n", ic.JobDescription)
	}
	if ic.JobRequirements != "" {
		fmt.Fprintf(b, "JOB REQUIREMENTS:\n%s\n\n", ic.JobRequirements)
	}
	if ic.CVText != "" {
		fmt.Fprintf(b, "CANDIDATE CV:\n%s\n\n", ic.CVText)
	}
	if ic.Knowledge != "" {
		fmt.Fprintf(b, "REFERENCE MATERIAL:\n%s\n\n", ic.Knowledge)
	}
}

func valueOr(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

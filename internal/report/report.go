// Package report exports a lesson session as a spreadsheet for educators.
package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-lesson/internal/lesson"
	"github.com/p-n-ai/pai-lesson/internal/presentation"
	"github.com/p-n-ai/pai-lesson/internal/session"
)

const (
	SummarySheet = "Summary"
	AnswersSheet = "Answers"
)

// Summary is the exportable view of one session.
type Summary struct {
	SessionID         string
	LessonID          string
	LessonTitle       string
	LearnerID         string
	State             string
	Score             int
	Passed            bool
	DurationSeconds   int
	SectionsCompleted int
	TotalSteps        int
	RunningScore      int
	Rows              []AnswerRow
}

// AnswerRow is one step of the lesson with the learner's latest attempt.
type AnswerRow struct {
	Index    int
	StepID   string
	Title    string
	Type     lesson.StepType
	Answer   string
	Graded   bool
	Correct  bool
	Feedback string
	Score    *int // pronunciation score of speech steps
}

// FromSession builds a Summary from a session snapshot and its lesson.
func FromSession(snap session.Snapshot, l *lesson.Lesson) Summary {
	sum := Summary{
		SessionID:    snap.ID,
		LessonID:     snap.LessonID,
		LessonTitle:  snap.LessonTitle,
		LearnerID:    snap.LearnerID,
		State:        string(snap.State),
		TotalSteps:   snap.TotalSteps,
		RunningScore: snap.RunningScore,
	}
	if c := snap.Completion; c != nil {
		sum.Score = c.Score
		sum.Passed = c.Passed
		sum.DurationSeconds = c.DurationSeconds
		sum.SectionsCompleted = c.SectionsCompleted
	} else {
		sum.DurationSeconds = snap.ElapsedSeconds
	}
	if l == nil {
		return sum
	}

	for i, step := range l.Steps {
		row := AnswerRow{
			Index:  i + 1,
			StepID: step.ID,
			Title:  step.Title,
			Type:   step.Type,
			Answer: snap.Answers[step.ID],
		}
		if fb, ok := snap.Feedback[step.ID]; ok {
			row.Graded = true
			row.Correct = fb.Correct
			row.Feedback = fb.Message
		}
		if res, ok := snap.Speech[step.ID]; ok {
			score := res.Score
			row.Score = &score
		}
		sum.Rows = append(sum.Rows, row)
	}
	return sum
}

// Workbook renders the summary as an xlsx file.
func Workbook(sum Summary) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	summary := [][]any{
		{"Session", sum.SessionID},
		{"Lesson", sum.LessonID},
		{"Title", sum.LessonTitle},
		{"Learner", sum.LearnerID},
		{"State", sum.State},
		{"Score (%)", sum.Score},
		{"Passed", sum.Passed},
		{"Duration", presentation.FormatClock(sum.DurationSeconds)},
		{"Sections completed", sum.SectionsCompleted},
		{"Total steps", sum.TotalSteps},
		{"Correct answers", sum.RunningScore},
	}
	for i, row := range summary {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(SummarySheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write summary row: %w", err)
		}
	}
	_ = f.SetColWidth(SummarySheet, "A", "A", 22)
	_ = f.SetColWidth(SummarySheet, "B", "B", 40)

	if _, err := f.NewSheet(AnswersSheet); err != nil {
		return nil, fmt.Errorf("create answers sheet: %w", err)
	}
	header := []any{"#", "Step", "Title", "Type", "Answer", "Correct", "Score", "Feedback"}
	if err := f.SetSheetRow(AnswersSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("write answers header: %w", err)
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetCellStyle(AnswersSheet, "A1", "H1", style)
		_ = f.SetCellStyle(SummarySheet, "A1", fmt.Sprintf("A%d", len(summary)), style)
	}

	for i, r := range sum.Rows {
		correct := ""
		if r.Graded {
			correct = "no"
			if r.Correct {
				correct = "yes"
			}
		}
		var score any = ""
		if r.Score != nil {
			score = *r.Score
		}
		row := []any{r.Index, r.StepID, r.Title, string(r.Type), r.Answer, correct, score, r.Feedback}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(AnswersSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write answer row: %w", err)
		}
	}
	_ = f.SetColWidth(AnswersSheet, "E", "E", 30)
	_ = f.SetColWidth(AnswersSheet, "H", "H", 60)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

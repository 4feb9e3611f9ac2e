package render

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"quiz-attempt/internal/app"
	"quiz-attempt/internal/domain"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

// FormatRemaining renders a countdown as mm:ss, or h:mm:ss past an hour.
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int((d + time.Second - 1) / time.Second)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// Countdown colours the remaining time: yellow under five minutes, red under one.
func Countdown(d time.Duration) string {
	text := FormatRemaining(d)
	switch {
	case d <= time.Minute:
		return color.RedString(text)
	case d <= 5*time.Minute:
		return color.YellowString(text)
	default:
		return color.GreenString(text)
	}
}

// Status is the one-line header shown above each prompt.
func Status(w io.Writer, s app.Snapshot) {
	fmt.Fprintf(w, "[%s] %d/%d answered (%d%%) %s\n",
		Countdown(s.Remaining), s.Progress.Answered, s.Progress.Total, s.Progress.Percent, s.State)
}

// Gate prints the confirmation summary.
func Gate(w io.Writer, s app.GateSummary) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Answered", "Unanswered", "Total"})
	table.Append([]string{strconv.Itoa(s.Answered), strconv.Itoa(s.Unanswered), strconv.Itoa(s.Total)})
	table.Render()
	if s.Warning() {
		color.New(color.FgYellow).Fprintf(w, "Unanswered: %s\n", strings.Join(s.UnansweredIDs, ", "))
	}
	fmt.Fprintln(w, "Submit now? [y/N]")
}

// Result prints a completed submission.
func Result(w io.Writer, rec domain.SubmissionRecord) {
	color.New(color.FgGreen, color.Bold).Fprintln(w, "\nSubmission received")
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Attempt", "Reason", "Status", "Score", "Answered", "Submitted"})
	table.Append(recordRow(rec))
	table.Render()
}

// History prints journal entries newest first.
func History(w io.Writer, records []domain.SubmissionRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No submissions recorded.")
		return
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Attempt", "Quiz", "Reason", "Status", "Score", "Answered", "Submitted"})
	for _, rec := range records {
		row := recordRow(rec)
		table.Append(append([]string{row[0], rec.QuizID}, row[1:]...))
	}
	table.Render()
}

// Score renders the score as "3/4", or "pending" while grading is deferred.
func Score(rec domain.SubmissionRecord) string {
	if rec.Score == nil {
		return "pending"
	}
	return fmt.Sprintf("%d/%d", *rec.Score, rec.TotalMarks)
}

func recordRow(rec domain.SubmissionRecord) []string {
	return []string{
		rec.AttemptID,
		string(rec.Reason),
		string(rec.Status),
		Score(rec),
		strconv.Itoa(len(rec.Answers)),
		rec.SubmittedAt.Local().Format(time.RFC3339),
	}
}

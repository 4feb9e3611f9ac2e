package render

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"quiz-attempt/internal/app"
	"quiz-attempt/internal/domain"

	"github.com/fatih/color"
)

// QuestionRenderer draws one question type and turns a typed line into an answer.
type QuestionRenderer interface {
	Render(w io.Writer, q domain.Question, current domain.Answer)
	Parse(q domain.Question, line string) (domain.Answer, error)
}

var renderers = map[domain.QuestionType]QuestionRenderer{
	domain.QuestionSingleChoice: singleChoice{},
	domain.QuestionTrueFalse:    trueFalse{},
	domain.QuestionFreeText:     freeText{},
}

// For returns the renderer registered for t.
func For(t domain.QuestionType) (QuestionRenderer, error) {
	r, ok := renderers[t]
	if !ok {
		return nil, fmt.Errorf("%w: no renderer for question type %q", domain.ErrInvalidAnswer, t)
	}
	return r, nil
}

// ParseInput interprets a terminal line as an answer to q and validates it.
func ParseInput(q domain.Question, line string) (domain.Answer, error) {
	r, err := For(q.Type)
	if err != nil {
		return nil, err
	}
	answer, err := r.Parse(q, strings.TrimSpace(line))
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateAnswer(q, answer); err != nil {
		return nil, err
	}
	return answer, nil
}

// Question prints the question under the cursor with its current answer, if any.
func Question(w io.Writer, view app.QuestionView) {
	header := color.New(color.FgCyan, color.Bold)
	header.Fprintf(w, "\nQuestion %d of %d", view.Index+1, view.Total)
	fmt.Fprintf(w, " (%d %s)\n", view.Question.Marks, plural(view.Question.Marks, "mark", "marks"))
	fmt.Fprintln(w, view.Question.Text)

	r, err := For(view.Question.Type)
	if err != nil {
		color.New(color.FgRed).Fprintln(w, err.Error())
		return
	}
	r.Render(w, view.Question, view.Answer)
}

type singleChoice struct{}

func (singleChoice) Render(w io.Writer, q domain.Question, current domain.Answer) {
	selected := ""
	if opt, ok := current.(domain.OptionAnswer); ok {
		selected = opt.OptionID
	}
	for i, opt := range q.Options {
		marker := " "
		if opt.ID == selected {
			marker = color.GreenString("*")
		}
		fmt.Fprintf(w, " %s %d) %s\n", marker, i+1, opt.Text)
	}
	fmt.Fprintln(w, "Answer with an option number.")
}

// Parse accepts the 1-based option number or the option id.
func (singleChoice) Parse(q domain.Question, line string) (domain.Answer, error) {
	if n, err := strconv.Atoi(line); err == nil {
		if n < 1 || n > len(q.Options) {
			return nil, fmt.Errorf("%w: choose an option between 1 and %d", domain.ErrInvalidAnswer, len(q.Options))
		}
		return domain.OptionAnswer{OptionID: q.Options[n-1].ID}, nil
	}
	return domain.OptionAnswer{OptionID: line}, nil
}

type trueFalse struct{}

func (trueFalse) Render(w io.Writer, _ domain.Question, current domain.Answer) {
	if b, ok := current.(domain.BoolAnswer); ok {
		fmt.Fprintf(w, "Current answer: %s\n", color.GreenString(b.Wire()))
	}
	fmt.Fprintln(w, "Answer with t(rue) or f(alse).")
}

func (trueFalse) Parse(_ domain.Question, line string) (domain.Answer, error) {
	switch strings.ToLower(line) {
	case "t", "true", "y", "yes":
		return domain.BoolAnswer{Value: true}, nil
	case "f", "false", "n", "no":
		return domain.BoolAnswer{Value: false}, nil
	}
	return nil, fmt.Errorf("%w: %q is neither true nor false", domain.ErrInvalidAnswer, line)
}

type freeText struct{}

func (freeText) Render(w io.Writer, _ domain.Question, current domain.Answer) {
	if text, ok := current.(domain.TextAnswer); ok {
		fmt.Fprintf(w, "Current answer: %s\n", color.GreenString(text.Text))
	}
	fmt.Fprintln(w, "Type your answer.")
}

func (freeText) Parse(_ domain.Question, line string) (domain.Answer, error) {
	return domain.TextAnswer{Text: line}, nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

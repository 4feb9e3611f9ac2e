package domain

import (
	"fmt"
	"strings"
)

// Answer is one of OptionAnswer, BoolAnswer or TextAnswer.
type Answer interface {
	// Wire returns the value sent to the server.
	Wire() string
	isAnswer()
}

// OptionAnswer selects an option of a single-choice question.
type OptionAnswer struct {
	OptionID string
}

// BoolAnswer answers a true/false question.
type BoolAnswer struct {
	Value bool
}

// TextAnswer answers a free-text question.
type TextAnswer struct {
	Text string
}

func (a OptionAnswer) Wire() string { return a.OptionID }

func (a BoolAnswer) Wire() string {
	if a.Value {
		return "True"
	}
	return "False"
}

func (a TextAnswer) Wire() string { return a.Text }

func (OptionAnswer) isAnswer() {}
func (BoolAnswer) isAnswer()   {}
func (TextAnswer) isAnswer()   {}

// ValidateAnswer checks that the answer variant fits the question.
func ValidateAnswer(q Question, a Answer) error {
	switch q.Type {
	case QuestionSingleChoice:
		opt, ok := a.(OptionAnswer)
		if !ok {
			return fmt.Errorf("%w: question %s expects an option", ErrInvalidAnswer, q.ID)
		}
		if !q.HasOption(opt.OptionID) {
			return fmt.Errorf("%w: option %q is not part of question %s", ErrInvalidAnswer, opt.OptionID, q.ID)
		}
		return nil
	case QuestionTrueFalse:
		if _, ok := a.(BoolAnswer); !ok {
			return fmt.Errorf("%w: question %s expects true or false", ErrInvalidAnswer, q.ID)
		}
		return nil
	case QuestionFreeText:
		text, ok := a.(TextAnswer)
		if !ok {
			return fmt.Errorf("%w: question %s expects text", ErrInvalidAnswer, q.ID)
		}
		if strings.TrimSpace(text.Text) == "" {
			return fmt.Errorf("%w: question %s: blank text", ErrInvalidAnswer, q.ID)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown question type %q", ErrInvalidAnswer, q.Type)
	}
}

// DecodeAnswer turns a wire value back into the variant for q.
func DecodeAnswer(q Question, raw string) (Answer, error) {
	var a Answer
	switch q.Type {
	case QuestionSingleChoice:
		a = OptionAnswer{OptionID: raw}
	case QuestionTrueFalse:
		switch raw {
		case "True":
			a = BoolAnswer{Value: true}
		case "False":
			a = BoolAnswer{Value: false}
		default:
			return nil, fmt.Errorf("%w: %q is not True or False", ErrInvalidAnswer, raw)
		}
	case QuestionFreeText:
		a = TextAnswer{Text: raw}
	default:
		return nil, fmt.Errorf("%w: unknown question type %q", ErrInvalidAnswer, q.Type)
	}
	if err := ValidateAnswer(q, a); err != nil {
		return nil, err
	}
	return a, nil
}

package domain

import "time"

// QuestionType tags how a question is answered.
type QuestionType string

const (
	QuestionSingleChoice QuestionType = "single_choice"
	QuestionTrueFalse    QuestionType = "true_false"
	QuestionFreeText     QuestionType = "free_text"
)

// Option is a selectable choice of a single-choice question.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Question is immutable once fetched. Only single-choice questions carry options.
type Question struct {
	ID      string       `json:"id"`
	Text    string       `json:"text"`
	Type    QuestionType `json:"type"`
	Options []Option     `json:"options,omitempty"`
	Marks   int          `json:"marks"`
}

// HasOption reports whether optionID belongs to the question.
func (q Question) HasOption(optionID string) bool {
	for _, opt := range q.Options {
		if opt.ID == optionID {
			return true
		}
	}
	return false
}

// Quiz is the definition fetched at attempt start. The client holds a read-only copy.
type Quiz struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	DurationMinutes int        `json:"durationMinutes"`
	Questions       []Question `json:"questions"`
	TotalMarks      int        `json:"totalMarks"`
}

// Duration is the attempt time budget.
func (q Quiz) Duration() time.Duration {
	return time.Duration(q.DurationMinutes) * time.Minute
}

// Question looks up a question by ID.
func (q Quiz) Question(id string) (Question, bool) {
	for _, question := range q.Questions {
		if question.ID == id {
			return question, true
		}
	}
	return Question{}, false
}

// Clone returns a deep copy so callers never share slices with the session.
func (q Quiz) Clone() Quiz {
	out := q
	out.Questions = make([]Question, len(q.Questions))
	for i, question := range q.Questions {
		question.Options = append([]Option(nil), question.Options...)
		out.Questions[i] = question
	}
	return out
}

// AttemptState is the lifecycle state of an attempt session.
type AttemptState string

const (
	StateNotStarted AttemptState = "not_started"
	StateInProgress AttemptState = "in_progress"
	StateSubmitting AttemptState = "submitting"
	StateCompleted  AttemptState = "completed"
	StateError      AttemptState = "error"
)

// SubmissionReason records what triggered the terminal transition.
type SubmissionReason string

const (
	ReasonManual SubmissionReason = "manual"
	ReasonExpiry SubmissionReason = "expiry"
)

// AnswerEntry is the wire form of a single answer.
type AnswerEntry struct {
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
}

// StartResponse is what the server returns when an attempt begins.
type StartResponse struct {
	AttemptID string
	Quiz      Quiz
}

// SubmitRequest is sent once per network try; every try of one submission carries the same key.
type SubmitRequest struct {
	AttemptID      string
	IdempotencyKey string
	Reason         SubmissionReason
	Answers        []AnswerEntry
}

// GradingStatus tells whether the server scored the submission immediately.
type GradingStatus string

const (
	GradingGraded  GradingStatus = "graded"
	GradingPending GradingStatus = "pending"
)

// SubmitResponse is the accepted outcome of a submission.
type SubmitResponse struct {
	Status      GradingStatus
	Score       *int
	TotalMarks  int
	SubmittedAt time.Time
}

// FrozenSubmission is the answer set captured at the InProgress -> Submitting transition.
// Every retry reuses it verbatim.
type FrozenSubmission struct {
	IdempotencyKey string           `json:"idempotencyKey"`
	Reason         SubmissionReason `json:"reason"`
	Answers        []AnswerEntry    `json:"answers"`
	FrozenAt       time.Time        `json:"frozenAt"`
}

// SubmissionRecord is produced exactly once per attempt.
type SubmissionRecord struct {
	AttemptID   string           `json:"attemptId"`
	QuizID      string           `json:"quizId"`
	Reason      SubmissionReason `json:"reason"`
	Answers     []AnswerEntry    `json:"answers"`
	Status      GradingStatus    `json:"status"`
	Score       *int             `json:"score,omitempty"`
	TotalMarks  int              `json:"totalMarks"`
	SubmittedAt time.Time        `json:"submittedAt"`
}

// Clone copies the record including its slices and score pointer.
func (r SubmissionRecord) Clone() SubmissionRecord {
	out := r
	out.Answers = append([]AnswerEntry(nil), r.Answers...)
	if r.Score != nil {
		score := *r.Score
		out.Score = &score
	}
	return out
}

// Checkpoint is the persisted form of an attempt session used to resume after a restart.
type Checkpoint struct {
	AttemptID    string            `json:"attemptId"`
	Quiz         Quiz              `json:"quiz"`
	Answers      []AnswerEntry     `json:"answers"`
	CurrentIndex int               `json:"currentIndex"`
	Deadline     time.Time         `json:"deadline"`
	State        AttemptState      `json:"state"`
	Frozen       *FrozenSubmission `json:"frozen,omitempty"`
	Revision     uint64            `json:"revision"`
	SavedAt      time.Time         `json:"savedAt"`
}

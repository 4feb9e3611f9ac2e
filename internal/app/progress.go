package app

import "math"

// Progress is the completion view derived from the answer store and the quiz.
type Progress struct {
	Answered int `json:"answered"`
	Total    int `json:"total"`
	Percent  int `json:"percent"`
}

// ComputeProgress returns round(100 * answered / total); an empty quiz is 0%.
func ComputeProgress(answered, total int) Progress {
	p := Progress{Answered: answered, Total: total}
	if total <= 0 {
		return p
	}
	p.Percent = int(math.Round(100 * float64(answered) / float64(total)))
	return p
}

// Unanswered is the number of questions still open.
func (p Progress) Unanswered() int {
	if p.Total < p.Answered {
		return 0
	}
	return p.Total - p.Answered
}

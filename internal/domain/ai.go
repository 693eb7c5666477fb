package domain

// ExplainRequest asks the AI why an answer is wrong.
type ExplainRequest struct {
	Question      string `json:"question"`
	WrongAnswer   string `json:"wrongAnswer"`
	CorrectAnswer string `json:"correctAnswer"`
}

// AdviceError is one missed question summarized for study advice.
type AdviceError struct {
	Question      string `json:"question"`
	UserAnswer    string `json:"userAnswer"`
	CorrectAnswer string `json:"correctAnswer"`
}

// AdviceRequest asks the AI for study advice after a test.
type AdviceRequest struct {
	UserID       int64         `json:"userId"`
	ResultID     string        `json:"resultId,omitempty"`
	Errors       []AdviceError `json:"errors"`
	CorrectCount int           `json:"correctCount"`
	TotalCount   int           `json:"totalCount"`
}

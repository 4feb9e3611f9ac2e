package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"quiz-attempt/internal/auth"
	"quiz-attempt/internal/domain"
)

// Client speaks the start/submit contract of the quiz server.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  auth.TokenSource
}

// NewClient builds an API client. tokens may be nil for unauthenticated servers.
func NewClient(baseURL string, timeout time.Duration, tokens auth.TokenSource) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
	}
}

type startResponse struct {
	AttemptID string      `json:"attemptId"`
	Quiz      domain.Quiz `json:"quiz"`
}

type submitRequest struct {
	Reason  domain.SubmissionReason `json:"reason"`
	Answers []domain.AnswerEntry    `json:"answers"`
}

type submitResponse struct {
	Status      domain.GradingStatus `json:"status"`
	Score       *int                 `json:"score,omitempty"`
	TotalMarks  int                  `json:"totalMarks"`
	SubmittedAt time.Time            `json:"submittedAt"`
}

type errorBody struct {
	Error string `json:"error"`
}

// StatusError is a non-success response that is worth retrying.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server responded %d: %s", e.Status, e.Body)
}

// StartAttempt asks the server to open an attempt for quizID.
func (c *Client) StartAttempt(ctx context.Context, quizID string) (domain.StartResponse, error) {
	path := "/quizzes/" + url.PathEscape(quizID) + "/attempts"
	resp, err := c.do(ctx, http.MethodPost, path, nil, nil)
	if err != nil {
		return domain.StartResponse{}, &domain.FetchError{QuizID: quizID, Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusNotFound:
		return domain.StartResponse{}, &domain.FetchError{QuizID: quizID, Err: domain.ErrQuizNotFound}
	case http.StatusGone:
		return domain.StartResponse{}, &domain.FetchError{QuizID: quizID, Err: domain.ErrAttemptWindowClosed}
	case http.StatusConflict:
		return domain.StartResponse{}, &domain.FetchError{QuizID: quizID, Err: domain.ErrAlreadyAttempted}
	default:
		return domain.StartResponse{}, &domain.FetchError{QuizID: quizID, Err: statusError(resp)}
	}

	var body startResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.StartResponse{}, &domain.FetchError{QuizID: quizID, Err: fmt.Errorf("decode start response: %w", err)}
	}
	if body.AttemptID == "" {
		return domain.StartResponse{}, &domain.FetchError{QuizID: quizID, Err: errors.New("start response without attempt id")}
	}
	return domain.StartResponse{AttemptID: body.AttemptID, Quiz: body.Quiz}, nil
}

// SubmitAttempt performs one submission call. Structured 4xx failures come back as
// *domain.RejectedError; everything else is transient.
func (c *Client) SubmitAttempt(ctx context.Context, req domain.SubmitRequest) (domain.SubmitResponse, error) {
	payload, err := json.Marshal(submitRequest{Reason: req.Reason, Answers: req.Answers})
	if err != nil {
		return domain.SubmitResponse{}, fmt.Errorf("marshal submission: %w", err)
	}
	headers := map[string]string{"Idempotency-Key": req.IdempotencyKey}
	path := "/attempts/" + url.PathEscape(req.AttemptID) + "/submission"
	resp, err := c.do(ctx, http.MethodPost, path, payload, headers)
	if err != nil {
		return domain.SubmitResponse{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
	case resp.StatusCode == http.StatusUnauthorized:
		if c.tokens != nil {
			c.tokens.Invalidate()
		}
		return domain.SubmitResponse{}, statusError(resp)
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return domain.SubmitResponse{}, statusError(resp)
	default:
		return domain.SubmitResponse{}, rejectedError(resp)
	}

	var body submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.SubmitResponse{}, fmt.Errorf("decode submit response: %w", err)
	}
	return domain.SubmitResponse{
		Status:      body.Status,
		Score:       body.Score,
		TotalMarks:  body.TotalMarks,
		SubmittedAt: body.SubmittedAt,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, headers map[string]string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("access token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return c.http.Do(req)
}

func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
}

func rejectedError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var body errorBody
	message := strings.TrimSpace(string(raw))
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		message = body.Error
	}
	return &domain.RejectedError{Status: resp.StatusCode, Message: message}
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	AccessToken string `json:"accessToken"`
}

// NewRefresher returns an auth.RefreshFunc exchanging refreshToken at refreshURL.
func NewRefresher(refreshURL, refreshToken string, timeout time.Duration) auth.RefreshFunc {
	client := &http.Client{Timeout: timeout}
	return func(ctx context.Context) (string, error) {
		payload, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
		if err != nil {
			return "", err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, refreshURL, bytes.NewReader(payload))
		if err != nil {
			return "", err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := client.Do(req)
		if err != nil {
			return "", fmt.Errorf("refresh token: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("refresh token: %w", statusError(resp))
		}
		var body refreshResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return "", fmt.Errorf("decode refresh response: %w", err)
		}
		if body.AccessToken == "" {
			return "", auth.ErrNoToken
		}
		return body.AccessToken, nil
	}
}

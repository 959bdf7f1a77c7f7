package grader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const defaultTimeout = 15 * time.Second

// HTTPClient talks to the similarity service over its wire contract:
// POST {base}/grade with {student_answer, reference_answer}, answered by
// {similarity, marks_out_of_1}. 503 means the model is still loading.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
}

// NewHTTPClient creates a similarity client for the given base URL.
// A non-positive timeout falls back to the default.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{},
		timeout: timeout,
	}
}

type gradeRequest struct {
	StudentAnswer   string `json:"student_answer"`
	ReferenceAnswer string `json:"reference_answer"`
}

type gradeResponse struct {
	Similarity float64 `json:"similarity"`
}

// Score implements Client. Each call carries its own deadline so one slow
// request cannot stall a whole grading fan-out.
func (c *HTTPClient) Score(ctx context.Context, studentAnswer, referenceAnswer string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(gradeRequest{
		StudentAnswer:   studentAnswer,
		ReferenceAnswer: referenceAnswer,
	})
	if err != nil {
		return 0, fmt.Errorf("marshal grade request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/grade", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build grade request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var gr gradeResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return 0, fmt.Errorf("decode grade response: %w", err)
	}
	if gr.Similarity < 0 || gr.Similarity > 1 {
		return 0, fmt.Errorf("similarity %v out of range", gr.Similarity)
	}
	return gr.Similarity, nil
}

package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pot-code/learnsync/internal/progress"
)

type recordsResponse struct {
	Records []*progress.CourseProgressRecord `json:"records"`
}

type syncRequest struct {
	CourseID       string           `json:"courseId"`
	CompletedItems progress.ItemSet `json:"completedItems"`
}

type resetRequest struct {
	CourseID string `json:"courseId"`
}

type errorResponse struct {
	Code   int    `json:"code"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// HTTPRemote talks to the progress service over its REST API
type HTTPRemote struct {
	BaseURL string
	Token   string // optional bearer token
	Client  *http.Client
}

var _ Remote = &HTTPRemote{}

// NewHTTPRemote baseURL is the server root, eg. http://127.0.0.1:8081
func NewHTTPRemote(baseURL, token string, timeout time.Duration) *HTTPRemote {
	return &HTTPRemote{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Client:  &http.Client{Timeout: timeout},
	}
}

func (hr *HTTPRemote) progressURL(username, action string) string {
	u := fmt.Sprintf("%s/api/v1/progress/%s", hr.BaseURL, url.PathEscape(username))
	if action != "" {
		u += "/" + action
	}
	return u
}

func (hr *HTTPRemote) Fetch(ctx context.Context, username string) ([]*progress.CourseProgressRecord, error) {
	return hr.do(ctx, http.MethodGet, hr.progressURL(username, ""), nil)
}

func (hr *HTTPRemote) SyncMerge(ctx context.Context, username, courseID string, items progress.ItemSet) ([]*progress.CourseProgressRecord, error) {
	if items == nil {
		items = make(progress.ItemSet)
	}
	return hr.do(ctx, http.MethodPost, hr.progressURL(username, "sync"), &syncRequest{courseID, items})
}

func (hr *HTTPRemote) Reset(ctx context.Context, username, courseID string) ([]*progress.CourseProgressRecord, error) {
	return hr.do(ctx, http.MethodPost, hr.progressURL(username, "reset"), &resetRequest{courseID})
}

func (hr *HTTPRemote) do(ctx context.Context, method, target string, payload interface{}) ([]*progress.CourseProgressRecord, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if hr.Token != "" {
		req.Header.Set("Authorization", "Bearer "+hr.Token)
	}

	res, err := hr.Client.Do(req)
	if err != nil {
		return nil, classifyTransportError(method, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, classifyStatus(res)
	}
	var decoded recordsResponse
	if err := json.NewDecoder(res.Body).Decode(&decoded); err != nil {
		// the write was applied if the server answered 200
		if method != http.MethodGet {
			return nil, fmt.Errorf("%w: decode response: %v", ErrUnknownOutcome, err)
		}
		return nil, fmt.Errorf("%w: decode response: %v", progress.ErrTransientStore, err)
	}
	if decoded.Records == nil {
		decoded.Records = []*progress.CourseProgressRecord{}
	}
	return decoded.Records, nil
}

// classifyTransportError a write that timed out may have reached the server
func classifyTransportError(method string, err error) error {
	var netErr net.Error
	timeout := errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout())
	if timeout && method != http.MethodGet {
		return fmt.Errorf("%w: %v", ErrUnknownOutcome, err)
	}
	return fmt.Errorf("%w: %v", progress.ErrTransientStore, err)
}

func classifyStatus(res *http.Response) error {
	var e errorResponse
	raw, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	detail := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &e) == nil && e.Detail != "" {
		detail = e.Detail
	}

	switch {
	case res.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", progress.ErrUserNotFound, detail)
	case res.StatusCode == http.StatusGatewayTimeout && res.Request != nil && res.Request.Method != http.MethodGet:
		return fmt.Errorf("%w: %d %s", ErrUnknownOutcome, res.StatusCode, detail)
	case res.StatusCode >= 500:
		return fmt.Errorf("%w: %d %s", progress.ErrTransientStore, res.StatusCode, detail)
	default:
		return fmt.Errorf("%w: %d %s", ErrRejected, res.StatusCode, detail)
	}
}

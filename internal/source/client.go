package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Sentinel errors for messaging source failures.
var (
	ErrSourceUnreachable = errors.New("source unreachable")
	ErrSourceAuth        = errors.New("source rejected credentials")
	ErrSourceQuery       = errors.New("source query error")
	ErrSourceTimeout     = errors.New("source request timeout")
)

// Client is the interface for talking to the messaging source.
type Client interface {
	RefreshToken(ctx context.Context, refreshToken string) (*Token, error)
	ListMessages(ctx context.Context, accessToken string, req ListRequest) (*MessagePage, error)
	Ready(ctx context.Context) error
}

// Token is a freshly issued credential pair.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// ListRequest defines parameters for one page of messages.
type ListRequest struct {
	Query     string
	PageToken string
	Limit     int
}

// Message is a single message as returned by the source.
type Message struct {
	ID         string    `json:"id"`
	From       string    `json:"from"`
	To         []string  `json:"to"`
	Labels     []string  `json:"labels"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	ReceivedAt time.Time `json:"received_at"`
}

// MessagePage is one page of results. NextPageToken is empty on the last page.
type MessagePage struct {
	Messages      []Message `json:"messages"`
	NextPageToken string    `json:"next_page_token"`
}

// HTTPClient implements Client over the source's REST API.
type HTTPClient struct {
	baseURL      string
	clientID     string
	clientSecret string
	client       *http.Client
	now          func() time.Time
}

// NewHTTPClient creates a new source HTTP client.
func NewHTTPClient(baseURL, clientID, clientSecret string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		client:       &http.Client{Timeout: timeout},
		now:          time.Now,
	}
}

func (c *HTTPClient) RefreshToken(ctx context.Context, refreshToken string) (*Token, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/oauth/token",
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("decoding token response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("%w: token response missing access_token", ErrSourceAuth)
	}

	tok := &Token{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresAt:    c.now().UTC().Add(time.Duration(tr.ExpiresIn) * time.Second),
	}
	// Providers that do not rotate refresh tokens omit the field.
	if tok.RefreshToken == "" {
		tok.RefreshToken = refreshToken
	}
	return tok, nil
}

func (c *HTTPClient) ListMessages(ctx context.Context, accessToken string, req ListRequest) (*MessagePage, error) {
	params := url.Values{}
	if req.Query != "" {
		params.Set("q", req.Query)
	}
	if req.PageToken != "" {
		params.Set("page_token", req.PageToken)
	}
	if req.Limit > 0 {
		params.Set("limit", strconv.Itoa(req.Limit))
	}

	u := fmt.Sprintf("%s/api/v1/messages?%s", c.baseURL, params.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var page MessagePage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decoding messages response: %w", err)
	}
	if page.Messages == nil {
		page.Messages = []Message{}
	}
	return &page, nil
}

func (c *HTTPClient) Ready(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/ready", nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSourceUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: source not ready (status %d)", ErrSourceUnreachable, resp.StatusCode)
	}
	return nil
}

// ListAll follows page tokens until the last page or maxPages pages have been
// read. maxPages <= 0 means no cap.
func ListAll(ctx context.Context, c Client, accessToken string, req ListRequest, maxPages int) ([]Message, error) {
	var all []Message
	for page := 0; maxPages <= 0 || page < maxPages; page++ {
		res, err := c.ListMessages(ctx, accessToken, req)
		if err != nil {
			return all, err
		}
		all = append(all, res.Messages...)
		if res.NextPageToken == "" {
			break
		}
		req.PageToken = res.NextPageToken
	}
	return all, nil
}

func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrSourceAuth, resp.StatusCode)
	default:
		return fmt.Errorf("%w: status %d", ErrSourceQuery, resp.StatusCode)
	}
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrSourceTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrSourceTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrSourceUnreachable, err)
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)

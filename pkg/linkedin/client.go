// Package linkedin provides a minimal client for the LinkedIn member
// API: publishing UGC posts and resolving the authenticated member's
// identity. Each client is bound to exactly one access token; the
// multi-tenant layer constructs one client per caller.
package linkedin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultBaseURL = "https://api.linkedin.com"

// Client calls the LinkedIn API on behalf of a single member.
type Client struct {
	accessToken string
	personURN   string
	baseURL     string
	httpClient  *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL. Used in tests and for
// API-compatible mock backends.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient injects a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a client for the given access token. personID may
// be empty; it is resolved lazily from the userinfo endpoint when a
// post is created.
func NewClient(accessToken, personID string, opts ...Option) *Client {
	c := &Client{
		accessToken: accessToken,
		baseURL:     defaultBaseURL,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
	if personID != "" {
		c.personURN = "urn:li:person:" + personID
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UserInfo is the OpenID Connect userinfo response.
type UserInfo struct {
	Sub   string `json:"sub"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// UserInfo fetches the authenticated member's identity.
func (c *Client) UserInfo(ctx context.Context) (*UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/userinfo", nil)
	if err != nil {
		return nil, fmt.Errorf("creating userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("userinfo request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading userinfo response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	var info UserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("parsing userinfo response: %w", err)
	}
	return &info, nil
}

// ugcPostRequest is the wire format for the ugcPosts endpoint.
type ugcPostRequest struct {
	Author          string          `json:"author"`
	LifecycleState  string          `json:"lifecycleState"`
	SpecificContent specificContent `json:"specificContent"`
	Visibility      visibility      `json:"visibility"`
}

type specificContent struct {
	ShareContent shareContent `json:"com.linkedin.ugc.ShareContent"`
}

type shareContent struct {
	ShareCommentary    commentary `json:"shareCommentary"`
	ShareMediaCategory string     `json:"shareMediaCategory"`
}

type commentary struct {
	Text string `json:"text"`
}

type visibility struct {
	MemberNetworkVisibility string `json:"com.linkedin.ugc.MemberNetworkVisibility"`
}

// CreatePost publishes a text post for the client's member and returns
// the URN of the created post.
func (c *Client) CreatePost(ctx context.Context, text string) (string, error) {
	author, err := c.author(ctx)
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(ugcPostRequest{
		Author:         author,
		LifecycleState: "PUBLISHED",
		SpecificContent: specificContent{
			ShareContent: shareContent{
				ShareCommentary:    commentary{Text: text},
				ShareMediaCategory: "NONE",
			},
		},
		Visibility: visibility{MemberNetworkVisibility: "PUBLIC"},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling post: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/ugcPosts", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating post request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("post request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading post response: %w", err)
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ugcPosts endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	// The created post URN arrives in the X-RestLi-Id header; fall back
	// to the response body id field.
	if urn := resp.Header.Get("X-Restli-Id"); urn != "" {
		return urn, nil
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err == nil && created.ID != "" {
		return created.ID, nil
	}
	return "", fmt.Errorf("ugcPosts response missing post id")
}

// author returns the author URN, resolving it from userinfo on first use.
func (c *Client) author(ctx context.Context) (string, error) {
	if c.personURN != "" {
		return c.personURN, nil
	}
	info, err := c.UserInfo(ctx)
	if err != nil {
		return "", fmt.Errorf("resolving author: %w", err)
	}
	c.personURN = "urn:li:person:" + info.Sub
	return c.personURN, nil
}

// Package remote is the client of the story service: registration, login,
// story listing, upload and deletion, and push subscriptions.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/oauth2"

	"github.com/pders01/storykeep/internal/debuglog"
)

const (
	DefaultBaseURL   = "https://story-api.dicoding.dev/v1"
	defaultUserAgent = "storykeep/1.0 (offline story client; github.com/pders01/storykeep)"
	defaultTimeout   = 30 * time.Second

	// fallbackPhotoName is used for photos re-fetched from a preview URL.
	fallbackPhotoName = "story-photo.jpg"
)

type Options struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	// Transport is the round tripper every request goes through. The cache
	// layer is plugged in here.
	Transport http.RoundTripper
	Tokens    oauth2.TokenSource
}

type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
	tokens    oauth2.TokenSource
	log       *debuglog.FieldLogger
}

func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	return &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		userAgent: opts.UserAgent,
		http: &http.Client{
			Timeout:   opts.Timeout,
			Transport: opts.Transport,
		},
		tokens: opts.Tokens,
		log:    debuglog.Component("remote"),
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetTokenSource replaces the source of bearer tokens for authenticated
// calls.
func (c *Client) SetTokenSource(ts oauth2.TokenSource) {
	c.tokens = ts
}

func (c *Client) Register(ctx context.Context, name, email, password string) error {
	body := map[string]string{"name": name, "email": email, "password": password}
	_, err := c.doJSON(ctx, http.MethodPost, "/register", body, false)
	return err
}

func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	body := map[string]string{"email": email, "password": password}
	env, err := c.doJSON(ctx, http.MethodPost, "/login", body, false)
	if err != nil {
		return nil, err
	}
	if env.LoginResult == nil || env.LoginResult.Token == "" {
		return nil, &APIError{Status: http.StatusOK, Message: "login response carries no token"}
	}
	return env.LoginResult, nil
}

func (c *Client) ListStories(ctx context.Context, opts ListOptions) ([]Story, error) {
	q := url.Values{}
	if opts.Page > 0 {
		q.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.Size > 0 {
		q.Set("size", strconv.Itoa(opts.Size))
	}
	if opts.Location {
		q.Set("location", "1")
	} else {
		q.Set("location", "0")
	}

	req, err := c.newRequest(ctx, http.MethodGet, "/stories?"+q.Encode(), nil, true)
	if err != nil {
		return nil, err
	}
	env, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if env.ListStory == nil {
		return []Story{}, nil
	}
	return env.ListStory, nil
}

func (c *Client) GetStory(ctx context.Context, id string) (*Story, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/stories/"+url.PathEscape(id), nil, true)
	if err != nil {
		return nil, err
	}
	env, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if env.Story == nil {
		return nil, &APIError{Status: http.StatusNotFound, Message: "story not found"}
	}
	return env.Story, nil
}

// AddStory uploads a story as the authenticated user.
func (c *Client) AddStory(ctx context.Context, story NewStory) error {
	return c.upload(ctx, "/stories", story, true)
}

// AddStoryGuest uploads a story without authentication.
func (c *Client) AddStoryGuest(ctx context.Context, story NewStory) error {
	return c.upload(ctx, "/stories/guest", story, false)
}

func (c *Client) DeleteStory(ctx context.Context, id string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/stories/"+url.PathEscape(id), nil, true)
	if err != nil {
		return err
	}
	_, err = c.do(req)
	return err
}

func (c *Client) Subscribe(ctx context.Context, sub PushSubscription) error {
	_, err := c.doJSON(ctx, http.MethodPost, "/notifications/subscribe", sub, true)
	return err
}

func (c *Client) Unsubscribe(ctx context.Context, endpoint string) error {
	body := map[string]string{"endpoint": endpoint}
	_, err := c.doJSON(ctx, http.MethodDelete, "/notifications/subscribe", body, true)
	return err
}

// Ping issues a HEAD request against the story list. Any HTTP answer means
// the service is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/stories", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	resp.Body.Close()
	return nil
}

// FetchPhoto downloads the image behind a preview URL so it can be uploaded
// again. It returns the bytes and their detected content type.
func (c *Client) FetchPhoto(ctx context.Context, photoURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, photoURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: fetching photo: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, "", &APIError{Status: resp.StatusCode, Message: "fetching photo"}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("reading photo: %w", err)
	}
	return data, mimetype.Detect(data).String(), nil
}

func (c *Client) upload(ctx context.Context, path string, story NewStory, auth bool) error {
	body, contentType, err := encodeStory(story)
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, body, auth)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	_, err = c.do(req)
	return err
}

// encodeStory builds the multipart form with the description, photo and
// optional lat/lon fields.
func encodeStory(story NewStory) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("description", story.Description); err != nil {
		return nil, "", err
	}

	mt := mimetype.Detect(story.Photo)
	name := story.PhotoName
	if name == "" {
		name = "story-photo" + mt.Extension()
		if mt.Extension() == "" {
			name = fallbackPhotoName
		}
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="photo"; filename=%q`, name))
	h.Set("Content-Type", mt.String())
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(story.Photo); err != nil {
		return nil, "", err
	}

	if story.Location != nil {
		if err := w.WriteField("lat", strconv.FormatFloat(story.Location.Lat, 'f', -1, 64)); err != nil {
			return nil, "", err
		}
		if err := w.WriteField("lon", strconv.FormatFloat(story.Location.Lon, 'f', -1, 64)); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload any, auth bool) (*envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	req, err := c.newRequest(ctx, method, path, bytes.NewReader(data), auth)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader, auth bool) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	if auth {
		tok, err := c.token()
		if err != nil {
			return nil, err
		}
		tok.SetAuthHeader(req)
	}
	return req, nil
}

func (c *Client) token() (*oauth2.Token, error) {
	if c.tokens == nil {
		return nil, ErrAuthMissing
	}
	tok, err := c.tokens.Token()
	if err != nil {
		if errors.Is(err, ErrAuthMissing) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrAuthMissing, err)
	}
	if tok == nil || tok.AccessToken == "" {
		return nil, ErrAuthMissing
	}
	return tok, nil
}

func (c *Client) do(req *http.Request) (*envelope, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrUnreachable, req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrUnreachable, err)
	}

	var env envelope
	decodeErr := json.Unmarshal(data, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		if decodeErr == nil {
			apiErr.Message = env.Message
		}
		c.log.With("status", resp.StatusCode).Debugf("%s %s failed: %s", req.Method, req.URL.Path, apiErr.Message)
		return nil, apiErr
	}
	if decodeErr != nil {
		return nil, &APIError{Status: resp.StatusCode, Message: "server returned an invalid response"}
	}
	if env.Error {
		msg := env.Message
		if msg == "" {
			msg = "API returned an error"
		}
		return nil, &APIError{Status: resp.StatusCode, Message: msg}
	}
	return &env, nil
}

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/medicore/medicore-api/internal/models"
	appErrors "github.com/medicore/medicore-api/pkg/errors"
)

// Client is a thin REST client for the admin API. It owns the bearer token
// and the query string conventions the server expects.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

// NewClient constructs a Client. A nil httpClient falls back to a client with
// a sane timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

// SetToken stores the bearer token used on subsequent requests.
func (c *Client) SetToken(token string) {
	c.token = token
}

// ListOptions carries the shared list parameters. Filter values equal to ""
// or "all" are dropped before the request so the server never sees sentinel
// values.
type ListOptions struct {
	Page      int
	PageSize  int
	Search    string
	SortBy    string
	SortOrder string
	Filters   map[string]string
}

// QueryString renders the options into a canonical query string. Keys are
// emitted in a stable order so equal options always produce equal strings,
// which the query cache relies on.
func (o ListOptions) QueryString() string {
	values := url.Values{}
	if o.Page > 0 {
		values.Set("page", strconv.Itoa(o.Page))
	}
	if o.PageSize > 0 {
		values.Set("page_size", strconv.Itoa(o.PageSize))
	}
	if s := strings.TrimSpace(o.Search); s != "" {
		values.Set("search", s)
	}
	if o.SortBy != "" {
		values.Set("sort_by", o.SortBy)
	}
	if o.SortOrder != "" {
		values.Set("sort_order", o.SortOrder)
	}
	for key, value := range o.Filters {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" || strings.EqualFold(trimmed, "all") {
			continue
		}
		values.Set(key, trimmed)
	}
	return values.Encode()
}

type envelope struct {
	Data  json.RawMessage  `json:"data"`
	Meta  *models.ListMeta `json:"meta"`
	Error *appErrors.Error `json:"error"`
}

// List fetches a resource collection and decodes the data block into out.
func (c *Client) List(ctx context.Context, resource string, opts ListOptions, out interface{}) (*models.ListMeta, error) {
	endpoint := c.baseURL + "/" + strings.TrimLeft(resource, "/")
	if qs := opts.QueryString(); qs != "" {
		endpoint += "?" + qs
	}
	env, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return nil, fmt.Errorf("decode list payload: %w", err)
		}
	}
	return env.Meta, nil
}

// Get fetches a single resource.
func (c *Client) Get(ctx context.Context, resource, id string, out interface{}) error {
	env, err := c.do(ctx, http.MethodGet, c.itemURL(resource, id), nil)
	if err != nil {
		return err
	}
	if out != nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

// Create posts a new resource.
func (c *Client) Create(ctx context.Context, resource string, payload, out interface{}) error {
	env, err := c.do(ctx, http.MethodPost, c.baseURL+"/"+strings.TrimLeft(resource, "/"), payload)
	if err != nil {
		return err
	}
	if out != nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

// Update puts a full resource edit.
func (c *Client) Update(ctx context.Context, resource, id string, payload, out interface{}) error {
	env, err := c.do(ctx, http.MethodPut, c.itemURL(resource, id), payload)
	if err != nil {
		return err
	}
	if out != nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

// Delete removes (deactivates) a resource.
func (c *Client) Delete(ctx context.Context, resource, id string) error {
	_, err := c.do(ctx, http.MethodDelete, c.itemURL(resource, id), nil)
	return err
}

// Upload posts one file as multipart/form-data to a resource's upload
// endpoint. The field name doubles as the path segment, matching the server
// routes: Upload(ctx, "patients", id, "photo", ...) posts to
// /patients/:id/photo with the file under the "photo" form field.
func (c *Client) Upload(ctx context.Context, resource, id, field, filename string, file io.Reader, out interface{}) error {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(field, filename)
	if err != nil {
		return fmt.Errorf("encode upload: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("encode upload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("encode upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.itemURL(resource, id)+"/"+url.PathEscape(field), body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	env, err := c.send(req)
	if err != nil {
		return err
	}
	if out != nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

func (c *Client) itemURL(resource, id string) string {
	return c.baseURL + "/" + strings.TrimLeft(resource, "/") + "/" + url.PathEscape(id)
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload interface{}) (*envelope, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req)
}

// send attaches the bearer token, runs the request and decodes the response
// envelope, surfacing the server's typed error when one is present.
func (c *Client) send(req *http.Request) (*envelope, error) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNoContent {
		return &envelope{}, nil
	}

	var env envelope
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if env.Error != nil {
		return nil, env.Error
	}
	if res.StatusCode >= 400 {
		return nil, appErrors.New("HTTP_ERROR", res.StatusCode, http.StatusText(res.StatusCode))
	}
	return &env, nil
}

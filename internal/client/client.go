package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	api "github.com/cropdesk/cropdesk/api/v1alpha1"
	"github.com/cropdesk/cropdesk/pkg/requestid"
)

// APIError is a non 2xx answer of the server.
type APIError struct {
	StatusCode int
	Message    string
	RequestId  string
}

func (e *APIError) Error() string {
	if e.RequestId != "" {
		return fmt.Sprintf("%d: %s (request id %s)", e.StatusCode, e.Message, e.RequestId)
	}
	return fmt.Sprintf("%d: %s", e.StatusCode, e.Message)
}

// Client is an HTTP client for the cropdesk API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New returns a client for the server at baseURL. A zero timeout leaves
// requests unbounded since uploads block until the tool is done.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   30 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:          100,
				IdleConnTimeout:       90 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
	}
}

func NewFromConfig(config *Config, timeout time.Duration) *Client {
	return New(config.Service.Server, timeout)
}

// UploadRequest describes one job submission.
type UploadRequest struct {
	Tool     string
	Files    []string
	UserId   *string
	Settings *string
}

// Upload streams the files to the job endpoint of the tool and waits for the result.
func (c *Client) Upload(ctx context.Context, req UploadRequest) (*api.JobResponse, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeUpload(mw, req))
	}()

	httpReq, err := c.newRequest(ctx, http.MethodPost, api.UploadUrl(req.Tool), pr)
	if err != nil {
		_ = pr.Close()
		return nil, err
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	var resp api.JobResponse
	if err := c.do(httpReq, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func writeUpload(mw *multipart.Writer, req UploadRequest) error {
	if req.UserId != nil {
		if err := mw.WriteField(api.UserIdField, *req.UserId); err != nil {
			return err
		}
	}
	if req.Settings != nil {
		if err := mw.WriteField(api.SettingsField, *req.Settings); err != nil {
			return err
		}
	}

	for _, path := range req.Files {
		if err := writeFilePart(mw, path); err != nil {
			return err
		}
	}
	return mw.Close()
}

// writeFilePart sets the part content type explicitly; CreateFormFile would
// send application/octet-stream, which the server rejects.
func writeFilePart(mw *multipart.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		api.UploadField, escapeQuotes(filepath.Base(path))))
	h.Set("Content-Type", "application/pdf")

	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

func (c *Client) History(ctx context.Context, userId string) (*api.HistoryResponse, error) {
	req, err := c.newRequest(ctx, http.MethodGet, api.HistoryUrl(userId), nil)
	if err != nil {
		return nil, err
	}
	var resp api.HistoryResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Tools(ctx context.Context) (api.ToolList, error) {
	req, err := c.newRequest(ctx, http.MethodGet, api.APIPrefix+"/tools", nil)
	if err != nil {
		return nil, err
	}
	var resp api.ToolList
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Download copies the artifact at the server relative path into w.
func (c *Client) Download(ctx context.Context, path string, w io.Writer) (int64, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, decodeError(resp)
	}
	return io.Copy(w, resp.Body)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", c.baseURL+path, err)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set(requestid.Header, requestid.Generate())
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	var body api.Error
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		apiErr.Message = body.Error
		if body.RequestId != nil {
			apiErr.RequestId = *body.RequestId
		}
	}
	return apiErr
}

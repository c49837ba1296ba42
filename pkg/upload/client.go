package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	mterrors "github.com/otherjamesbrown/minute-cli/pkg/errors"
)

// Client speaks the JSON/multipart upload protocol of the storage gateway.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates an upload protocol client. httpClient may be nil, in
// which case http.DefaultClient is used.
func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, apiKey: apiKey, httpClient: httpClient}
}

type initiateRequest struct {
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
	MimeType string `json:"mimeType"`
}

type initiateResponse struct {
	UploadID string `json:"uploadId"`
}

type chunkResponse struct {
	ETag string `json:"etag"`
}

type finalizeRequest struct {
	ETags []string `json:"etags"`
}

type finalizeResponse struct {
	FileKey string `json:"fileKey"`
}

// StatusResponse is the server's view of a resumable session.
type StatusResponse struct {
	FileName       string   `json:"fileName"`
	TotalSize      int64    `json:"totalSize"`
	TotalChunks    int      `json:"totalChunks"`
	UploadedChunks []int    `json:"uploadedChunks"`
	ETags          []string `json:"etags"`
}

// Initiate opens a new upload session and returns its id.
func (c *Client) Initiate(ctx context.Context, fileName string, size int64, mimeType string) (string, error) {
	var resp initiateResponse
	err := c.postJSON(ctx, c.baseURL+"/uploads/initiate", initiateRequest{
		FileName: fileName,
		FileSize: size,
		MimeType: mimeType,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.UploadID == "" {
		return "", fmt.Errorf("initiate response: %w", mterrors.ErrMalformedResponse)
	}
	return resp.UploadID, nil
}

// UploadChunk sends one chunk and returns the server's acknowledgment tag.
func (c *Client) UploadChunk(ctx context.Context, uploadID string, index int, data []byte) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if err := writer.WriteField("chunkIndex", strconv.Itoa(index)); err != nil {
		return "", err
	}
	part, err := writer.CreateFormFile("chunk", fmt.Sprintf("chunk-%d", index))
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/uploads/%s/chunk", c.baseURL, uploadID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.authorize(req)

	var resp chunkResponse
	if err := c.do(req, &resp); err != nil {
		return "", err
	}
	if resp.ETag == "" {
		return "", fmt.Errorf("chunk response: %w", mterrors.ErrMalformedResponse)
	}
	return resp.ETag, nil
}

// Finalize completes the upload and returns the stored file key.
func (c *Client) Finalize(ctx context.Context, uploadID string, etags []string) (string, error) {
	var resp finalizeResponse
	url := fmt.Sprintf("%s/uploads/%s/finalize", c.baseURL, uploadID)
	if err := c.postJSON(ctx, url, finalizeRequest{ETags: etags}, &resp); err != nil {
		return "", err
	}
	if resp.FileKey == "" {
		return "", fmt.Errorf("finalize response: %w", mterrors.ErrMalformedResponse)
	}
	return resp.FileKey, nil
}

// Status fetches the server's session state for resumption.
func (c *Client) Status(ctx context.Context, uploadID string) (*StatusResponse, error) {
	url := fmt.Sprintf("%s/uploads/%s/status", c.baseURL, uploadID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	var resp StatusResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (c *Client) postJSON(ctx context.Context, url string, payload, out interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &mterrors.ServiceError{
			StatusCode: resp.StatusCode,
			Endpoint:   req.URL.Path,
			Body:       string(body),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response: %w", mterrors.ErrMalformedResponse)
	}
	return nil
}

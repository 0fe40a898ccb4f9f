package civicapi

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
	"strings"
	"time"

	"postbox/internal/config"
	"postbox/internal/queue"
	"postbox/internal/services"
)

const userAgent = "Postbox-Go/0.1.0"

// HTTPDoer abstracts the HTTP client for tests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client wraps the intake backend's two-endpoint contract: attachment upload
// and submission create. Every method is safe to retry; idempotence across
// retries is the caller's job (the sync engine never re-calls a succeeded
// operation for the same record).
type Client struct {
	baseURL       string
	token         string
	healthPath    string
	client        HTTPDoer
	uploadClient  HTTPDoer
	uploadTimeout time.Duration
}

// New constructs a client from configuration. Upload calls get a longer
// timeout than JSON calls since kiosk photos can be megabytes over weak
// links.
func New(cfg *config.Config) *Client {
	requestTimeout := time.Duration(cfg.API.RequestTimeout) * time.Second
	uploadTimeout := time.Duration(cfg.API.UploadTimeout) * time.Second
	return &Client{
		baseURL:       strings.TrimRight(cfg.API.BaseURL, "/"),
		token:         cfg.API.Token,
		healthPath:    cfg.API.HealthPath,
		client:        &http.Client{Timeout: requestTimeout},
		uploadClient:  &http.Client{Timeout: uploadTimeout},
		uploadTimeout: uploadTimeout,
	}
}

// WithHTTPDoer replaces both underlying HTTP clients (used in tests).
func (c *Client) WithHTTPDoer(doer HTTPDoer) *Client {
	c.client = doer
	c.uploadClient = doer
	return c
}

// HealthURL returns the URL the network monitor should probe.
func (c *Client) HealthURL() string {
	return c.baseURL + c.healthPath
}

type uploadResponse struct {
	URL string `json:"url"`
}

// UploadAttachment sends one blob as multipart form data and returns the
// remote reference the backend assigned.
func (c *Client) UploadAttachment(ctx context.Context, data []byte, filename, mediaType string) (string, error) {
	if len(data) == 0 {
		return "", services.Wrap(services.ErrValidation, "civicapi", "upload", "attachment is empty", nil)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := createFilePart(writer, filename, mediaType)
	if err != nil {
		return "", services.Wrap(nil, "civicapi", "upload", "build multipart body", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", services.Wrap(nil, "civicapi", "upload", "write multipart body", err)
	}
	if err := writer.Close(); err != nil {
		return "", services.Wrap(nil, "civicapi", "upload", "finalize multipart body", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/files/upload", &body)
	if err != nil {
		return "", services.Wrap(nil, "civicapi", "upload", "build request", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.applyStandardHeaders(req)

	resp, err := c.uploadClient.Do(req)
	if err != nil {
		return "", classifyTransportError("upload", err)
	}
	defer resp.Body.Close()

	if err := classifyStatus("upload", resp); err != nil {
		return "", err
	}

	var decoded uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", services.Wrap(services.ErrTransient, "civicapi", "upload", "decode response", err)
	}
	if strings.TrimSpace(decoded.URL) == "" {
		return "", services.Wrap(services.ErrTransient, "civicapi", "upload", "response missing url", nil)
	}
	return decoded.URL, nil
}

type receiptResponse struct {
	ReceiptID   string `json:"receipt_id"`
	ReceiptHash string `json:"receipt_hash"`
	QRData      string `json:"qr_data"`
	CreatedAt   string `json:"created_at"`
}

// CreateSubmission posts the payload and returns the backend's receipt. The
// receipt id becomes the record's remote identifier.
func (c *Client) CreateSubmission(ctx context.Context, payload queue.Payload) (queue.Receipt, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return queue.Receipt{}, services.Wrap(services.ErrValidation, "civicapi", "submit", "encode payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/submission", bytes.NewReader(encoded))
	if err != nil {
		return queue.Receipt{}, services.Wrap(nil, "civicapi", "submit", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.applyStandardHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return queue.Receipt{}, classifyTransportError("submit", err)
	}
	defer resp.Body.Close()

	if err := classifyStatus("submit", resp); err != nil {
		return queue.Receipt{}, err
	}

	var decoded receiptResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return queue.Receipt{}, services.Wrap(services.ErrTransient, "civicapi", "submit", "decode receipt", err)
	}
	if strings.TrimSpace(decoded.ReceiptID) == "" {
		return queue.Receipt{}, services.Wrap(services.ErrTransient, "civicapi", "submit", "receipt missing id", nil)
	}
	return queue.Receipt{
		RemoteID:    decoded.ReceiptID,
		ReceiptHash: decoded.ReceiptHash,
		QRData:      decoded.QRData,
	}, nil
}

func (c *Client) applyStandardHeaders(req *http.Request) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func createFilePart(writer *multipart.Writer, filename, mediaType string) (io.Writer, error) {
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	if mediaType != "" {
		header.Set("Content-Type", mediaType)
	}
	return writer.CreatePart(header)
}

func classifyTransportError(operation string, err error) error {
	var urlErr interface{ Timeout() bool }
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return services.Wrap(services.ErrTimeout, "civicapi", operation, "request timed out", err)
	}
	return services.Wrap(services.ErrTransient, "civicapi", operation, "request failed", err)
}

func classifyStatus(operation string, resp *http.Response) error {
	if resp.StatusCode < http.StatusBadRequest {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	detail := strings.TrimSpace(string(body))
	message := fmt.Sprintf("backend returned %d", resp.StatusCode)
	if detail != "" {
		message = fmt.Sprintf("%s: %s", message, detail)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return services.Wrap(services.ErrConfiguration, "civicapi", operation, message, nil)
	case resp.StatusCode == http.StatusNotFound:
		return services.Wrap(services.ErrConfiguration, "civicapi", operation, message, nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		return services.Wrap(services.ErrTransient, "civicapi", operation, message, nil)
	case resp.StatusCode >= http.StatusInternalServerError:
		return services.Wrap(services.ErrTransient, "civicapi", operation, message, nil)
	default:
		// Remaining 4xx: the backend rejected this payload. Retrying the
		// same bytes cannot succeed.
		return services.Wrap(services.ErrValidation, "civicapi", operation, message, nil)
	}
}

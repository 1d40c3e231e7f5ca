package ipfs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	apperrors "propchain/internal/common/errors"
)

// ErrNotFound is returned when the store has no content for a CID.
var ErrNotFound = errors.New("content not found")

const maxDocumentSize = 1 << 20

// Store is a content-addressed metadata store.
type Store interface {
	Fetch(ctx context.Context, cid string) ([]byte, error)
	Publish(ctx context.Context, data []byte) (string, error)
	RawURL(cid string) string
}

// HTTPStore reads through a public gateway and publishes through the IPFS HTTP API.
type HTTPStore struct {
	gatewayBase   string
	apiBase       string
	projectID     string
	projectSecret string
	httpClient    *http.Client
}

func NewHTTPStore(gatewayURL, apiURL, projectID, projectSecret string, timeout time.Duration) *HTTPStore {
	if gatewayURL == "" {
		gatewayURL = "https://ipfs.io"
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPStore{
		gatewayBase:   strings.TrimRight(gatewayURL, "/"),
		apiBase:       strings.TrimRight(apiURL, "/"),
		projectID:     projectID,
		projectSecret: projectSecret,
		httpClient:    &http.Client{Timeout: timeout},
	}
}

func (s *HTTPStore) RawURL(cid string) string {
	return s.gatewayBase + "/ipfs/" + cid
}

// Fetch downloads the document behind cid from the gateway.
func (s *HTTPStore) Fetch(ctx context.Context, cid string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.RawURL(cid), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperrors.Wrap(ErrNotFound, apperrors.ErrCodeNotFound, "Metadata not found").
			WithDetail("cid", cid)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("ipfs gateway http %d", resp.StatusCode)
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
}

// Publish adds data through /api/v0/add and returns the resulting CID.
func (s *HTTPStore) Publish(ctx context.Context, data []byte) (string, error) {
	if s.apiBase == "" {
		return "", fmt.Errorf("ipfs api url is not configured")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "metadata.json")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiBase+"/api/v0/add?pin=true", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if s.projectID != "" {
		req.SetBasicAuth(s.projectID, s.projectSecret)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ipfs api http %d", resp.StatusCode)
	}

	var out struct {
		Hash string `json:"Hash"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.Hash == "" {
		return "", fmt.Errorf("ipfs api returned empty hash")
	}
	return out.Hash, nil
}

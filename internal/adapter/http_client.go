package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/ledgerkeep/ledgersync/models"
)

// HTTPClientConfig configures the REST backend adapter.
type HTTPClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type httpBackendAdapter struct {
	client *resty.Client
	stream *resty.Client
	apiKey string

	mu    sync.RWMutex
	token string
}

// NewHTTPBackendAdapter builds a BackendAdapter speaking the backend's REST
// and SSE surface. The Timeout bounds every mutation request so mutation
// calls always return promptly; it is not applied to push-channel streams.
func NewHTTPBackendAdapter(cfg HTTPClientConfig) BackendAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8080"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	base := strings.TrimRight(cfg.BaseURL, "/")

	cli := resty.New().
		SetBaseURL(base).
		SetTimeout(cfg.Timeout)

	// http.Client.Timeout also bounds reading the response body, which would
	// kill a healthy push stream mid-flight, so streams get their own client
	// with no global timeout.
	stream := resty.New().SetBaseURL(base)

	return &httpBackendAdapter{client: cli, stream: stream, apiKey: cfg.APIKey}
}

func (h *httpBackendAdapter) SetAuthToken(token string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.token = strings.TrimSpace(token)
}

func (h *httpBackendAdapter) Token() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.token
}

func (h *httpBackendAdapter) Insert(ctx context.Context, row models.Row) (models.Row, error) {
	resp, err := h.authedRequest(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(row).
		Post("/v1/" + string(row.Table))
	if err != nil {
		return models.Row{}, fmt.Errorf("insert request: %w: %w", ErrNetwork, err)
	}
	if err = mapHTTPError(resp); err != nil {
		return models.Row{}, err
	}

	var confirmed models.Row
	if err = json.Unmarshal(resp.Body(), &confirmed); err != nil {
		return models.Row{}, fmt.Errorf("decode insert response: %w", err)
	}
	return confirmed, nil
}

type updateRequest struct {
	OwnerID   string          `json:"owner_id"`
	UpdatedAt time.Time       `json:"updated_at"`
	Fields    models.RowFields `json:"fields"`
}

func (h *httpBackendAdapter) Update(ctx context.Context, table models.TableIdentity, id, ownerID string, patch models.RowFields, updatedAt time.Time) (models.Row, error) {
	req := updateRequest{OwnerID: ownerID, UpdatedAt: updatedAt, Fields: patch}

	resp, err := h.authedRequest(ctx).
		SetHeader("Content-Type", "application/json").
		SetQueryParam("owner_id", ownerID).
		SetBody(req).
		Patch("/v1/" + string(table) + "/" + id)
	if err != nil {
		return models.Row{}, fmt.Errorf("update request: %w: %w", ErrNetwork, err)
	}
	if err = mapHTTPError(resp); err != nil {
		return models.Row{}, err
	}

	var confirmed models.Row
	if err = json.Unmarshal(resp.Body(), &confirmed); err != nil {
		return models.Row{}, fmt.Errorf("decode update response: %w", err)
	}
	return confirmed, nil
}

type softDeleteRequest struct {
	OwnerID   string    `json:"owner_id"`
	DeletedAt time.Time `json:"deleted_at"`
}

func (h *httpBackendAdapter) SoftDelete(ctx context.Context, table models.TableIdentity, id, ownerID string, deletedAt time.Time) error {
	resp, err := h.authedRequest(ctx).
		SetHeader("Content-Type", "application/json").
		SetQueryParam("owner_id", ownerID).
		SetBody(softDeleteRequest{OwnerID: ownerID, DeletedAt: deletedAt}).
		Delete("/v1/" + string(table) + "/" + id)
	if err != nil {
		return fmt.Errorf("soft delete request: %w: %w", ErrNetwork, err)
	}

	return mapHTTPError(resp)
}

type batchInsertRequest struct {
	Rows   []models.Row `json:"rows"`
	Length int          `json:"length"`
}

func (h *httpBackendAdapter) BatchInsert(ctx context.Context, table models.TableIdentity, rows []models.Row) ([]BatchOutcome, error) {
	req := batchInsertRequest{Rows: rows, Length: len(rows)}

	resp, err := h.authedRequest(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		Post("/v1/" + string(table) + "/batch")
	if err != nil {
		return nil, fmt.Errorf("batch insert request: %w: %w", ErrNetwork, err)
	}
	if err = mapHTTPError(resp); err != nil {
		return nil, err
	}

	var outcomes []BatchOutcome
	if err = json.Unmarshal(resp.Body(), &outcomes); err != nil {
		return nil, fmt.Errorf("decode batch insert response: %w", err)
	}
	return outcomes, nil
}

func (h *httpBackendAdapter) HealthProbe(ctx context.Context) error {
	resp, err := h.authedRequest(ctx).Get("/v1/health")
	if err != nil {
		return fmt.Errorf("health probe request: %w: %w", ErrNetwork, err)
	}

	return mapHTTPError(resp)
}

func (h *httpBackendAdapter) authedRequest(ctx context.Context) *resty.Request {
	return h.withAuth(h.client.R().SetContext(ctx))
}

func (h *httpBackendAdapter) authedStreamRequest(ctx context.Context) *resty.Request {
	return h.withAuth(h.stream.R().SetContext(ctx))
}

func (h *httpBackendAdapter) withAuth(req *resty.Request) *resty.Request {
	if h.apiKey != "" {
		req.SetHeader("X-Api-Key", h.apiKey)
	}
	if token := h.Token(); token != "" {
		req.SetHeader("Authorization", "Bearer "+token)
	}
	return req
}

func mapHTTPError(resp *resty.Response) error {
	code := resp.StatusCode()
	if code >= http.StatusOK && code < http.StatusMultipleChoices {
		return nil
	}

	body := strings.TrimSpace(string(resp.Body()))
	if body == "" {
		body = http.StatusText(code)
	}

	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: http %d: %s", ErrOwnership, code, body)
	case code == http.StatusNotFound:
		return fmt.Errorf("%w: http %d: %s", ErrNotFound, code, body)
	case code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= http.StatusInternalServerError:
		return fmt.Errorf("%w: http %d: %s", ErrNetwork, code, body)
	default:
		return fmt.Errorf("%w: http %d: %s", ErrValidation, code, body)
	}
}

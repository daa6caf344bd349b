package score

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// RemoteTimeout is the hard deadline on the remote score backend. It is
// applied regardless of any deadline already present on the caller's
// context.
const RemoteTimeout = 2 * time.Second

// RemoteProvider fetches scores from an external HTTPS API, presenting a
// bearer credential. Grounded on internal/service/trust_engine.go's
// pattern of a dedicated *http.Client with an explicit timeout — here the
// timeout is enforced per-request via context rather than on the client,
// since RemoteTimeout must hold even if a caller's own context has a
// longer or no deadline.
type RemoteProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewRemoteProvider constructs a RemoteProvider. httpClient may be nil to
// use http.DefaultClient; callers typically pass a client with
// connection-level tuning (Redis/Postgres-style pooling does not apply
// here, but keep-alives do).
func NewRemoteProvider(baseURL, apiKey string, httpClient *http.Client, logger *slog.Logger) *RemoteProvider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RemoteProvider{baseURL: baseURL, apiKey: apiKey, httpClient: httpClient, logger: logger}
}

type remoteScoreResponse struct {
	Score int `json:"score"`
}

func (p *RemoteProvider) GetScore(ctx context.Context, principalID string) int {
	ctx, cancel := context.WithTimeout(ctx, RemoteTimeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/users/%s/score", p.baseURL, url.PathEscape(principalID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		p.logger.Warn("remote score request construction failed, failing closed", "error", err)
		return 0
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.Warn("remote score request failed, failing closed", "error", err)
		return 0
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		p.logger.Warn("remote score backend returned non-2xx, failing closed", "status", resp.StatusCode)
		return 0
	}

	var body remoteScoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		p.logger.Warn("remote score backend returned malformed body, failing closed", "error", err)
		return 0
	}
	return clampScore(body.Score)
}

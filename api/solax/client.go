package solax

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/HavvokLab/solax-cloud/model"
	"github.com/HavvokLab/solax-cloud/pkg/logger"
	"github.com/HavvokLab/solax-cloud/pkg/util"
	"github.com/imroc/req/v3"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const RealtimeInfoPath = "/proxy/api/getRealtimeInfo.do"

// DefaultEndpoints are the regional realtime endpoints, tried in order.
var DefaultEndpoints = []string{
	"https://www.solaxcloud.com:9443" + RealtimeInfoPath,
	"https://euapi.solaxcloud.com:9443" + RealtimeInfoPath,
}

const (
	messageConnect    = "Could not connect to the SolaX Cloud API"
	messageTimeout    = "Timeout while communicating with the SolaX Cloud API"
	messageUnknown    = "Unknown error"
	messageBadPayload = "Unexpected API payload received"
)

type SolaxClient struct {
	reqClient    *req.Client
	tokenID      string
	serialNumber string
	baseURL      string
	endpoints    []string
	limiter      *rate.Limiter
	logger       zerolog.Logger
}

type Option func(*SolaxClient)

func WithTimeout(timeout time.Duration) Option {
	return func(s *SolaxClient) {
		if timeout > 0 {
			s.reqClient.SetTimeout(timeout)
		}
	}
}

// WithEndpoints replaces the fixed regional endpoints.
func WithEndpoints(endpoints ...string) Option {
	return func(s *SolaxClient) {
		if len(endpoints) > 0 {
			s.endpoints = append([]string(nil), endpoints...)
		}
	}
}

// WithBaseURL puts a user supplied endpoint in front of the fixed ones.
func WithBaseURL(baseURL string) Option {
	return func(s *SolaxClient) {
		s.baseURL = strings.TrimSpace(baseURL)
	}
}

// WithRateLimiter shares a quota between every client built with the same
// limiter.
func WithRateLimiter(limiter *rate.Limiter) Option {
	return func(s *SolaxClient) {
		s.limiter = limiter
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *SolaxClient) {
		s.logger = l
	}
}

func NewSolaxClient(tokenID, serialNumber string, opts ...Option) *SolaxClient {
	s := &SolaxClient{
		tokenID:      tokenID,
		serialNumber: serialNumber,
		endpoints:    append([]string(nil), DefaultEndpoints...),
		logger:       logger.New("solax_api.log"),
	}
	s.reqClient = req.C().
		SetCommonRetryCount(0).
		SetTimeout(30 * time.Second).
		OnBeforeRequest(func(client *req.Client, r *req.Request) error {
			s.logger.Debug().
				Str("url", r.RawURL).
				Str("token_id", util.Redact(s.tokenID, 4)).
				Str("serial_number", util.Redact(s.serialNumber, 4)).
				Msg("SolaxClient::NewSolaxClient() - requesting")
			return nil
		})

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// ResolveEndpoint turns a bare base URL such as https://global.solaxcloud.com
// into a realtime endpoint. URLs that already carry a path are kept.
func ResolveEndpoint(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return baseURL
	}

	if u.Path == "" || u.Path == "/" {
		u.Path = RealtimeInfoPath
	}

	return u.String()
}

// Endpoints returns the endpoints in the order they are tried.
func (s *SolaxClient) Endpoints() []string {
	result := make([]string, 0, len(s.endpoints)+1)
	seen := make(map[string]bool)
	if !util.IsEmpty(s.baseURL) {
		endpoint := ResolveEndpoint(s.baseURL)
		result = append(result, endpoint)
		seen[endpoint] = true
	}

	for _, endpoint := range s.endpoints {
		if seen[endpoint] {
			continue
		}
		seen[endpoint] = true
		result = append(result, endpoint)
	}

	return result
}

// GetRealtimeInfo returns the result object of the first endpoint that
// answers with success. When every endpoint fails an authentication error is
// preferred over the last transport or API error.
func (s *SolaxClient) GetRealtimeInfo(ctx context.Context) (map[string]any, error) {
	var authErr, lastErr error
	for _, endpoint := range s.Endpoints() {
		result, err := s.GetRealtimeInfoFrom(ctx, endpoint)
		if err == nil {
			return result, nil
		}

		if ctx.Err() != nil {
			return nil, err
		}

		if authErr == nil && IsAuthenticationError(err) {
			authErr = err
		}
		lastErr = err

		s.logger.Warn().
			Err(err).
			Str("endpoint", endpoint).
			Str("serial_number", util.Redact(s.serialNumber, 4)).
			Msg("SolaxClient::GetRealtimeInfo() - endpoint failed")
	}

	if authErr != nil {
		return nil, authErr
	}

	if lastErr == nil {
		lastErr = &APIError{Message: messageConnect, Err: errors.New("no endpoints configured")}
	}

	return nil, lastErr
}

func (s *SolaxClient) GetRealtimeInfoFrom(ctx context.Context, endpoint string) (map[string]any, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, &APIError{Endpoint: endpoint, Message: messageConnect, Err: err}
		}
	}

	query := map[string]string{
		"tokenId": s.tokenID,
		"sn":      s.serialNumber,
	}

	resp, err := s.reqClient.R().
		SetContext(ctx).
		SetQueryParams(query).
		Get(endpoint)

	if err != nil {
		message := messageConnect
		if isTimeout(err) {
			message = messageTimeout
		}

		s.logger.Error().
			Err(err).
			Str("url", endpoint).
			Msg("failed to get realtime info")
		return nil, &APIError{Endpoint: endpoint, Message: message, Err: err}
	}

	if resp.IsErrorState() {
		var errorResult model.ApiErrorResponse
		_ = json.Unmarshal(resp.Bytes(), &errorResult)
		s.logger.Error().
			Str("url", endpoint).
			Int("status_code", resp.StatusCode).
			Any("error_response", errorResult).
			Msg("failed to get realtime info")

		message := errorResult.Message()
		if message == "" {
			message = fmt.Sprintf("unexpected status code %d", resp.StatusCode)
		}
		return nil, &APIError{Endpoint: endpoint, Message: message}
	}

	var payload RealtimeInfoResponse
	if err := json.Unmarshal(resp.Bytes(), &payload); err != nil {
		s.logger.Error().
			Err(err).
			Str("url", endpoint).
			Int("status_code", resp.StatusCode).
			Str("raw", string(resp.Bytes())).
			Msg("failed to decode realtime info")
		return nil, &APIError{Endpoint: endpoint, Message: messageBadPayload, Err: err}
	}

	s.logger.Debug().
		Str("url", endpoint).
		Int("status_code", resp.StatusCode).
		Bool("success", payload.Success).
		Str("exception", payload.Exception).
		RawJSON("result", rawOrNull(payload.Result)).
		Msg("received realtime info")

	if !payload.Success {
		message := strings.TrimSpace(payload.Exception)
		if message == "" {
			message = messageUnknown
		}

		apiErr := &APIError{Endpoint: endpoint, Message: message, Code: payload.Code}
		if isAuthenticationMessage(message) {
			apiErr.Err = ErrAuthentication
		}
		return nil, apiErr
	}

	var result map[string]any
	if len(payload.Result) == 0 {
		return nil, &APIError{Endpoint: endpoint, Message: messageBadPayload, Code: payload.Code}
	}
	if err := json.Unmarshal(payload.Result, &result); err != nil || result == nil {
		return nil, &APIError{Endpoint: endpoint, Message: messageBadPayload, Code: payload.Code, Err: err}
	}

	return result, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func rawOrNull(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte("null")
	}

	return raw
}

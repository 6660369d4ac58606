package integration

import (
	"github.com/HavvokLab/solax-cloud/api/solax"
	"github.com/HavvokLab/solax-cloud/collector"
	"github.com/HavvokLab/solax-cloud/config"
	"github.com/HavvokLab/solax-cloud/pkg/logger"
	"go.openly.dev/pointy"
	"golang.org/x/time/rate"
)

// ClientFactory builds the cloud client for one credential pair.
type ClientFactory func(tokenID, serialNumber string, apiBaseURL *string) collector.Fetcher

// NewRateLimiter returns the quota limiter shared by every client.
func NewRateLimiter(conf config.SolaxConfig) *rate.Limiter {
	burst := conf.RequestBurst
	if burst < 1 {
		burst = 1
	}

	return rate.NewLimiter(rate.Limit(conf.RequestsPerMinute/60), burst)
}

// NewClientFactory returns a factory whose clients share one limiter and
// one API logger.
func NewClientFactory(conf config.SolaxConfig, limiter *rate.Limiter) ClientFactory {
	apiLogger := logger.New("solax_api.log")
	return func(tokenID, serialNumber string, apiBaseURL *string) collector.Fetcher {
		return solax.NewSolaxClient(tokenID, serialNumber,
			solax.WithEndpoints(conf.Endpoints...),
			solax.WithBaseURL(pointy.StringValue(apiBaseURL, "")),
			solax.WithTimeout(conf.RequestTimeout),
			solax.WithRateLimiter(limiter),
			solax.WithLogger(apiLogger),
		)
	}
}

// Package objectstore fronts an S3-compatible bucket. It produces
// presigned URLs for direct client transfers and performs server-side
// requests with signing and retry.
package objectstore

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"

	"github.com/beisanytime/shiurhub"
)

const (
	defaultMaxRetries   = 10
	defaultInitialDelay = 50 * time.Millisecond
)

// Config describes the bucket endpoint and credentials.
type Config struct {
	Endpoint        string `mapstructure:"endpoint" validate:"required,url"`
	Bucket          string `mapstructure:"bucket" validate:"required"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id" validate:"required"`
	SecretAccessKey string `mapstructure:"secret_access_key" validate:"required"`
	SessionToken    string `mapstructure:"session_token"`

	UploadExpiry      time.Duration `mapstructure:"upload_expiry"`
	MaxRetries        int           `mapstructure:"max_retries"`
	InitialRetryDelay time.Duration `mapstructure:"initial_retry_delay"`
}

func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("objectstore config: %w: %w", err, shiurhub.ErrConfiguration)
	}
	return nil
}

// Gateway signs and issues requests against a single bucket.
type Gateway struct {
	signer       *shiurhub.Signer
	endpoint     *url.URL
	bucket       string
	client       *http.Client
	maxRetries   int
	initialDelay time.Duration
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithHTTPClient replaces the HTTP client used by Do.
func WithHTTPClient(client *http.Client) GatewayOption {
	return func(g *Gateway) { g.client = client }
}

// WithRetries overrides the retry count and initial backoff delay.
func WithRetries(maxRetries int, initialDelay time.Duration) GatewayOption {
	return func(g *Gateway) {
		g.maxRetries = maxRetries
		g.initialDelay = initialDelay
	}
}

// NewGateway builds a Gateway from cfg. The signer's service and region
// are pinned to s3 semantics; the endpoint host decides the rest.
func NewGateway(cfg Config, opts ...GatewayOption) (*Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	endpoint, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("objectstore: parse endpoint: %w: %w", err, shiurhub.ErrConfiguration)
	}

	signerOpts := []shiurhub.SignerOption{shiurhub.WithService("s3")}
	if cfg.Region != "" {
		signerOpts = append(signerOpts, shiurhub.WithRegion(cfg.Region))
	}
	signer, err := shiurhub.NewSigner(shiurhub.Credentials{
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		SessionToken:    cfg.SessionToken,
	}, signerOpts...)
	if err != nil {
		return nil, err
	}

	g := &Gateway{
		signer:       signer,
		endpoint:     endpoint,
		bucket:       cfg.Bucket,
		client:       http.DefaultClient,
		maxRetries:   defaultMaxRetries,
		initialDelay: defaultInitialDelay,
	}
	if cfg.MaxRetries > 0 {
		g.maxRetries = cfg.MaxRetries
	}
	if cfg.InitialRetryDelay > 0 {
		g.initialDelay = cfg.InitialRetryDelay
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func (g *Gateway) objectURL(objectKey string) string {
	u := *g.endpoint
	u.Path = path.Join(u.Path, g.bucket, objectKey)
	return u.String()
}

// PresignedURL returns a URL authorizing a single method on objectKey for
// the expires window.
func (g *Gateway) PresignedURL(method, objectKey string, expires time.Duration) (string, error) {
	if objectKey == "" {
		return "", fmt.Errorf("presign: empty object key: %w", shiurhub.ErrInvalidInput)
	}
	signedURL, err := g.signer.Presign(method, g.objectURL(objectKey), expires)
	if err != nil {
		return "", fmt.Errorf("presign %s %s: %w", method, objectKey, err)
	}
	return signedURL, nil
}

// Do signs req and issues it, retrying on HTTP 5xx and 429 with jittered
// exponential backoff. Each attempt is signed fresh so the date stays
// current. When retries are exhausted the last response is returned with
// a nil error so the caller can inspect the status. Network errors are
// not retried.
func (g *Gateway) Do(ctx context.Context, req shiurhub.SignRequest) (*http.Response, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = g.initialDelay

	var res *http.Response
	attempts := 0
	operation := func() error {
		signed, err := g.signer.Sign(req)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("objectstore: sign: %w", err))
		}
		httpReq, err := signed.HTTPRequest(ctx)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("objectstore: build request: %w", err))
		}

		res, err = g.client.Do(httpReq) //nolint:bodyclose // caller owns the final response body
		if err != nil {
			return backoff.Permanent(fmt.Errorf("objectstore: %w", err))
		}

		if res.StatusCode >= http.StatusInternalServerError || res.StatusCode == http.StatusTooManyRequests {
			attempts++
			if attempts > g.maxRetries {
				// Out of retries. Hand back the last response.
				return nil
			}
			_ = res.Body.Close()
			return fmt.Errorf("objectstore: status %d", res.StatusCode)
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return nil, err
	}
	return res, nil
}

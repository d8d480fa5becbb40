package shiurhub

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultPresignExpiry is the validity window applied to S3 presigned URLs
// when the caller does not supply one.
const DefaultPresignExpiry = 86400 * time.Second

// Credentials identify the signing principal. They are supplied at process
// start and never persisted by this package.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// Signer produces AWS Signature Version 4 signatures, either as an
// Authorization header or as presigned query-string parameters. A Signer is
// safe for concurrent use; the signing-key cache is its only shared state
// and entries are pure functions of (secret, date, region, service).
type Signer struct {
	creds   Credentials
	service string
	region  string
	cache   *signingKeyCache
	now     func() time.Time
}

// SignerOption configures a Signer.
type SignerOption func(*Signer)

// WithService fixes the signing service name instead of inferring it from
// the request host.
func WithService(service string) SignerOption {
	return func(s *Signer) { s.service = service }
}

// WithRegion fixes the signing region instead of inferring it from the
// request host.
func WithRegion(region string) SignerOption {
	return func(s *Signer) { s.region = region }
}

// WithClock overrides the time source. Used in tests; signing is
// deterministic for a fixed instant.
func WithClock(now func() time.Time) SignerOption {
	return func(s *Signer) { s.now = now }
}

// NewSigner validates the credentials and returns a Signer. Missing keys
// are a configuration error, never retried.
func NewSigner(creds Credentials, opts ...SignerOption) (*Signer, error) {
	if creds.AccessKeyID == "" {
		return nil, fmt.Errorf("new signer: accessKeyId is required: %w", ErrConfiguration)
	}
	if creds.SecretAccessKey == "" {
		return nil, fmt.Errorf("new signer: secretAccessKey is required: %w", ErrConfiguration)
	}

	s := &Signer{
		creds: creds,
		cache: newSigningKeyCache(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SignRequest describes one request to sign.
type SignRequest struct {
	// Method defaults to POST when a body is present, GET otherwise.
	Method  string
	URL     string
	Headers http.Header
	Body    []byte

	// SignQuery selects presigned-URL mode instead of an Authorization
	// header.
	SignQuery bool
	// AllHeaders signs every supplied header, including the normally
	// unsignable set.
	AllHeaders bool
	// SingleEncode skips the second percent-encoding pass on the path.
	SingleEncode bool
	// AppendSessionToken appends X-Amz-Security-Token after signing
	// rather than before. Forced on for services that require it.
	AppendSessionToken bool

	// Service and Region override the Signer defaults and host inference.
	Service string
	Region  string
	// DateTime fixes the signing instant; zero means now.
	DateTime time.Time
	// Expires sets the presigned validity window. Zero applies
	// DefaultPresignExpiry for S3.
	Expires time.Duration
}

// SignedRequest is a fully signed request ready to send or hand out.
type SignedRequest struct {
	Method  string
	URL     *url.URL
	Headers http.Header
	Body    []byte
}

// HTTPRequest materializes the signed request for an http.Client.
func (r *SignedRequest) HTTPRequest(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	if len(r.Body) > 0 {
		body = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL.String(), body)
	if err != nil {
		return nil, fmt.Errorf("signed request: %w", err)
	}
	for name, values := range r.Headers {
		req.Header[name] = values
	}
	return req, nil
}

// Sign canonicalizes and signs the request. The output is deterministic for
// identical (request, datetime, credentials) tuples, which makes retries
// idempotent at the signature level.
func (s *Signer) Sign(req SignRequest) (*SignedRequest, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("sign: parse url: %w: %w", err, ErrInvalidInput)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("sign: url has no host: %w", ErrInvalidInput)
	}

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
		if len(req.Body) > 0 {
			method = http.MethodPost
		}
	}

	// Host is always synthesized from the URL, never taken from the caller.
	headers := cloneHeader(req.Headers)
	headers.Del("Host")

	service := firstNonEmpty(req.Service, s.service)
	region := firstNonEmpty(req.Region, s.region)
	if service == "" || region == "" {
		guessedService, guessedRegion := guessServiceRegion(u)
		service = firstNonEmpty(service, guessedService)
		region = firstNonEmpty(region, guessedRegion)
	}
	if region == "" {
		region = "us-east-1"
	}

	dt := req.DateTime
	if dt.IsZero() {
		dt = s.now()
	}
	datetime := dt.UTC().Format(DateTimeFormat)
	dateStamp := datetime[:len(DateFormat)]

	appendToken := req.AppendSessionToken || service == "iotdevicegateway"

	if service == "s3" && !req.SignQuery && headers.Get(amzContentSha256Header) == "" {
		headers.Set(amzContentSha256Header, UnsignedPayload)
	}

	query := u.Query()
	setParam := func(key, value string) {
		if req.SignQuery {
			query.Set(key, value)
		} else {
			headers.Set(key, value)
		}
	}
	setParam(amzDateHeader, datetime)
	if s.creds.SessionToken != "" && !appendToken {
		setParam(amzSecurityTokenParam, s.creds.SessionToken)
	}

	names := signableHeaderNames(headers, req.AllHeaders)
	signedHeaders := strings.Join(names, ";")
	credentialScope := strings.Join([]string{dateStamp, region, service, "aws4_request"}, "/")

	if req.SignQuery {
		if query.Get(amzExpiresParam) == "" {
			expires := req.Expires
			if expires <= 0 && service == "s3" {
				expires = DefaultPresignExpiry
			}
			if expires > 0 {
				query.Set(amzExpiresParam, strconv.FormatInt(int64(expires/time.Second), 10))
			}
		}
		query.Set(amzAlgorithmParam, SignatureAlgorithm)
		query.Set(amzCredentialParam, s.creds.AccessKeyID+"/"+credentialScope)
		query.Set(amzSignedHeadersParam, signedHeaders)
	}

	canonical := canonicalRequest{
		method:           method,
		encodedPath:      encodePath(u.EscapedPath(), service, req.SingleEncode),
		encodedQuery:     encodeQuery(query, service == "s3"),
		canonicalHeaders: canonicalHeaderString(names, headers, u.Host),
		signedHeaders:    signedHeaders,
		payloadHash:      payloadHash(headers, service, req.SignQuery, req.Body),
	}

	signingKey := s.cache.get(s.creds.SecretAccessKey, dateStamp, region, service)
	toSign := stringToSign(datetime, credentialScope, canonical.String())
	signature := hex.EncodeToString(hmacSHA256(signingKey, []byte(toSign)))

	if req.SignQuery {
		query.Set(amzSignatureParam, signature)
		if s.creds.SessionToken != "" && appendToken {
			query.Set(amzSecurityTokenParam, s.creds.SessionToken)
		}
		u.RawQuery = query.Encode()
	} else {
		headers.Set("Authorization", fmt.Sprintf("%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
			SignatureAlgorithm, s.creds.AccessKeyID, credentialScope, signedHeaders, signature))
	}

	return &SignedRequest{
		Method:  method,
		URL:     u,
		Headers: headers,
		Body:    req.Body,
	}, nil
}

// Presign signs a bare request for the given method and URL in query mode
// and returns the resulting URL.
func (s *Signer) Presign(method, rawURL string, expires time.Duration) (string, error) {
	signed, err := s.Sign(SignRequest{
		Method:    method,
		URL:       rawURL,
		SignQuery: true,
		Expires:   expires,
	})
	if err != nil {
		return "", err
	}
	return signed.URL.String(), nil
}

func payloadHash(headers http.Header, service string, signQuery bool, body []byte) string {
	if h := headers.Get(amzContentSha256Header); h != "" {
		return h
	}
	if service == "s3" && signQuery {
		return UnsignedPayload
	}
	return sha256Hex(body)
}

// signingKeyCache memoizes the chained-HMAC day keys. Entries are pure
// functions of the key tuple and shared across requests; stale dates are
// kept, so growth is bounded by process lifetime in days times credential
// count.
type signingKeyCache struct {
	mu   sync.Mutex
	keys map[string][]byte
}

func newSigningKeyCache() *signingKeyCache {
	return &signingKeyCache{keys: make(map[string][]byte)}
}

func (c *signingKeyCache) get(secret, dateStamp, region, service string) []byte {
	cacheKey := strings.Join([]string{secret, dateStamp, region, service}, "\x00")

	c.mu.Lock()
	defer c.mu.Unlock()
	if key, ok := c.keys[cacheKey]; ok {
		return key
	}
	key := deriveSigningKey(secret, dateStamp, region, service)
	c.keys[cacheKey] = key
	return key
}

func deriveSigningKey(secret, dateStamp, region, service string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+secret), []byte(dateStamp))
	kRegion := hmacSHA256(kDate, []byte(region))
	kService := hmacSHA256(kRegion, []byte(service))
	return hmacSHA256(kService, []byte("aws4_request"))
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

func cloneHeader(h http.Header) http.Header {
	if h == nil {
		return http.Header{}
	}
	return h.Clone()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

package shiurhub

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

const (
	// SignatureAlgorithm is the SigV4 algorithm identifier.
	SignatureAlgorithm = "AWS4-HMAC-SHA256"
	// UnsignedPayload is the payload-hash sentinel for streaming S3 uploads.
	UnsignedPayload = "UNSIGNED-PAYLOAD"
	// DateTimeFormat is the second-stripped UTC timestamp used in signing.
	DateTimeFormat = "20060102T150405Z"
	// DateFormat is the date-stamp component of the credential scope.
	DateFormat = "20060102"

	amzDateHeader          = "X-Amz-Date"
	amzContentSha256Header = "X-Amz-Content-Sha256"
	amzSecurityTokenParam  = "X-Amz-Security-Token"
	amzExpiresParam        = "X-Amz-Expires"
	amzAlgorithmParam      = "X-Amz-Algorithm"
	amzCredentialParam     = "X-Amz-Credential"
	amzSignedHeadersParam  = "X-Amz-SignedHeaders"
	amzSignatureParam      = "X-Amz-Signature"
)

// unsignableHeaders are excluded from the canonical headers unless the
// caller forces AllHeaders. Hop-by-hop and proxy-mangled headers cannot be
// relied on to survive the wire unchanged.
var unsignableHeaders = map[string]struct{}{
	"authorization":     {},
	"content-type":      {},
	"content-length":    {},
	"user-agent":        {},
	"presigned-expires": {},
	"expect":            {},
	"x-amzn-trace-id":   {},
	"range":             {},
	"connection":        {},
}

// canonicalRequest holds the normalized pieces of a request to be signed.
type canonicalRequest struct {
	method           string
	encodedPath      string
	encodedQuery     string
	canonicalHeaders string
	signedHeaders    string
	payloadHash      string
}

// String renders the canonical request. The canonical headers block carries
// a trailing newline before the signed-headers line.
func (c canonicalRequest) String() string {
	return strings.Join([]string{
		c.method,
		c.encodedPath,
		c.encodedQuery,
		c.canonicalHeaders + "\n",
		c.signedHeaders,
		c.payloadHash,
	}, "\n")
}

func stringToSign(datetime, credentialScope, canonical string) string {
	return strings.Join([]string{
		SignatureAlgorithm,
		datetime,
		credentialScope,
		sha256Hex([]byte(canonical)),
	}, "\n")
}

// signableHeaderNames returns the lower-cased, sorted header names to sign:
// always "host", plus every caller header not in the unsignable set.
func signableHeaderNames(headers http.Header, allHeaders bool) []string {
	names := []string{"host"}
	for name := range headers {
		lower := strings.ToLower(name)
		if _, unsignable := unsignableHeaders[lower]; unsignable && !allHeaders {
			continue
		}
		names = append(names, lower)
	}
	sort.Strings(names)
	return names
}

var whitespaceRuns = regexp.MustCompile(`\s+`)

// canonicalHeaderString joins "name:value" lines for the signed headers.
// The host value is synthesized from the URL; other values have internal
// whitespace runs collapsed to a single space.
func canonicalHeaderString(names []string, headers http.Header, host string) string {
	lines := make([]string, 0, len(names))
	for _, name := range names {
		value := host
		if name != "host" {
			value = whitespaceRuns.ReplaceAllString(headers.Get(name), " ")
		}
		lines = append(lines, name+":"+value)
	}
	return strings.Join(lines, "\n")
}

// encodePath canonicalizes the request path. S3 paths are decoded once to
// recover literal characters; other services only get multi-slash
// collapsing. Unless singleEncode is set the path is then percent-encoded
// again with "/" preserved, and in all cases the RFC 3986 fixup re-escapes
// the characters percent-encoding leaves alone.
func encodePath(escapedPath, service string, singleEncode bool) string {
	path := escapedPath
	if path == "" {
		path = "/"
	}

	if service == "s3" {
		if decoded, err := url.PathUnescape(strings.ReplaceAll(path, "+", " ")); err == nil {
			path = decoded
		}
	} else {
		path = multiSlash.ReplaceAllString(path, "/")
	}

	if !singleEncode {
		path = percentEncode(path, false)
	}

	return encodeRFC3986(path)
}

var multiSlash = regexp.MustCompile(`/+`)

// encodeQuery canonicalizes query parameters: percent-encode key and value,
// sort by (key, value), join with "&". Empty keys are dropped. S3 treats
// repeated query keys specially, so for that service only the first value
// of each key is kept.
func encodeQuery(query url.Values, s3 bool) string {
	pairs := make([][2]string, 0, len(query))
	for key, values := range query {
		if key == "" {
			continue
		}
		if s3 {
			values = values[:1]
		}
		for _, value := range values {
			pairs = append(pairs, [2]string{
				encodeRFC3986(percentEncode(key, true)),
				encodeRFC3986(percentEncode(value, true)),
			})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i][0] != pairs[j][0] {
			return pairs[i][0] < pairs[j][0]
		}
		return pairs[i][1] < pairs[j][1]
	})
	parts := make([]string, len(pairs))
	for i, pair := range pairs {
		parts[i] = pair[0] + "=" + pair[1]
	}
	return strings.Join(parts, "&")
}

// percentEncode escapes every byte except the characters JavaScript's
// encodeURIComponent leaves intact (A-Z a-z 0-9 - _ . ! ~ * ' ( )), and
// optionally "/". encodeRFC3986 handles the stragglers.
func percentEncode(s string, encodeSlash bool) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			b.WriteByte(c)
		case c == '-' || c == '_' || c == '.' || c == '!' || c == '~' ||
			c == '*' || c == '\'' || c == '(' || c == ')':
			b.WriteByte(c)
		case c == '/' && !encodeSlash:
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

// encodeRFC3986 escapes the five characters RFC 3986 reserves but
// percent-encoding leaves untouched.
func encodeRFC3986(s string) string {
	replacer := strings.NewReplacer(
		"!", "%21",
		"'", "%27",
		"(", "%28",
		")", "%29",
		"*", "%2A",
	)
	return replacer.Replace(s)
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

package shiurhub

import (
	"net/url"
	"regexp"
	"strings"
)

// hostServices maps endpoint subdomain tokens to their signing service
// names where the two differ.
var hostServices = map[string]string{
	"appstream2":     "appstream",
	"cloudhsmv2":     "cloudhsm",
	"email":          "ses",
	"marketplace":    "aws-marketplace",
	"queue":          "sqs",
	"git-codecommit": "codecommit",
}

var (
	lambdaURLHost   = regexp.MustCompile(`^[^.]{1,63}\.lambda-url\.([^.]{1,63})\.on\.aws$`)
	backblazeHost   = regexp.MustCompile(`^(?:[^.]{1,63}\.)?s3\.([^.]{1,63})\.backblazeb2\.com$`)
	amazonHost      = regexp.MustCompile(`([^.]{1,63})\.(?:([^.]{0,63})\.)?amazonaws\.com(?:\.cn)?$`)
	trailingDigit   = regexp.MustCompile(`-\d$`)
	fipsOrExternal1 = regexp.MustCompile(`^fips-|^external-1`)
)

// guessServiceRegion infers the signing service and region from a known
// endpoint host. Cloudflare R2 and Backblaze B2 endpoints sign as "s3";
// AWS-hosted endpoints follow the amazonaws.com subdomain conventions,
// including the legacy s3-<region>, dualstack, fips, and accelerate forms.
// Unknown hosts yield empty strings and callers fall back to defaults.
func guessServiceRegion(u *url.URL) (service, region string) {
	hostname := u.Hostname()

	if strings.HasSuffix(hostname, ".on.aws") {
		if m := lambdaURLHost.FindStringSubmatch(hostname); m != nil {
			return "lambda", m[1]
		}
		return "", ""
	}

	if strings.HasSuffix(hostname, ".r2.cloudflarestorage.com") {
		return "s3", "auto"
	}

	if strings.HasSuffix(hostname, ".backblazeb2.com") {
		if m := backblazeHost.FindStringSubmatch(hostname); m != nil {
			return "s3", m[1]
		}
		return "", ""
	}

	m := amazonHost.FindStringSubmatch(strings.Replace(hostname, "dualstack.", "", 1))
	if m == nil {
		return "", ""
	}
	service, region = m[1], m[2]

	switch {
	case region == "us-gov":
		region = "us-gov-west-1"
	case region == "s3" || region == "s3-accelerate":
		region = "us-east-1"
		service = "s3"
	case region == "" && strings.HasPrefix(service, "s3-"):
		region = fipsOrExternal1.ReplaceAllString(service[3:], "")
		service = "s3"
	case strings.HasSuffix(service, "-fips"):
		service = strings.TrimSuffix(service, "-fips")
	case region != "" && trailingDigit.MatchString(service) && !trailingDigit.MatchString(region):
		service, region = region, service
	}

	if mapped, ok := hostServices[service]; ok {
		service = mapped
	}
	return service, region
}

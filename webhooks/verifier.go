package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/protocolguide/go-billing/core"
)

// DefaultSignatureHeader is the header the billing provider signs payloads
// under.
const DefaultSignatureHeader = "Stripe-Signature"

const (
	defaultSignatureTolerance = 5 * time.Minute
	signatureScheme           = "v1"
)

// SignatureError rejects a delivery before any side effect. Every
// verification failure, malformed header included, collapses into it so the
// transport answers the same way regardless of cause.
type SignatureError struct {
	Reason string
}

func (e SignatureError) Error() string {
	return "webhooks: signature verification failed: " + e.Reason
}

// Verifier authenticates one raw delivery against its signature header.
type Verifier interface {
	Verify(body []byte, signatureHeader string) error
}

// SignatureVerifier checks the provider's timestamped HMAC scheme: the
// header carries `t=<unix>` and one or more `v1=<hex>` pairs, each v1 an
// HMAC-SHA256 of "<t>.<body>" under the shared secret. Verification is
// fail-closed: no secret, no header, stale timestamp, or no matching
// signature all reject.
type SignatureVerifier struct {
	Secret    string
	Tolerance time.Duration
	Now       func() time.Time
}

func NewSignatureVerifier(cfg core.WebhookConfig) SignatureVerifier {
	return SignatureVerifier{
		Secret:    strings.TrimSpace(cfg.Secret),
		Tolerance: cfg.Tolerance(),
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (v SignatureVerifier) Verify(body []byte, signatureHeader string) error {
	secret := strings.TrimSpace(v.Secret)
	if secret == "" {
		return SignatureError{Reason: "signing secret is not configured"}
	}
	signatureHeader = strings.TrimSpace(signatureHeader)
	if signatureHeader == "" {
		return SignatureError{Reason: "signature header is missing"}
	}

	timestamp, candidates, err := parseSignatureHeader(signatureHeader)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return SignatureError{Reason: "no " + signatureScheme + " signature in header"}
	}

	now := time.Now().UTC()
	if v.Now != nil {
		now = v.Now().UTC()
	}
	tolerance := v.Tolerance
	if tolerance <= 0 {
		tolerance = defaultSignatureTolerance
	}
	delta := now.Sub(time.Unix(timestamp, 0).UTC())
	if delta < 0 {
		delta = -delta
	}
	if delta > tolerance {
		return SignatureError{Reason: "timestamp outside tolerance"}
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := mac.Sum(nil)

	for _, candidate := range candidates {
		decoded, decodeErr := hex.DecodeString(candidate)
		if decodeErr != nil {
			continue
		}
		if hmac.Equal(expected, decoded) {
			return nil
		}
	}
	return SignatureError{Reason: "signature mismatch"}
}

// parseSignatureHeader splits `t=1700000000,v1=abc,v1=def` into the
// timestamp and the v1 candidates. Unknown schemes are ignored so the
// provider can rotate schemes without breaking older receivers.
func parseSignatureHeader(header string) (int64, []string, error) {
	var (
		timestamp    int64
		hasTimestamp bool
		candidates   []string
	)
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			return 0, nil, SignatureError{Reason: "malformed signature header"}
		}
		switch strings.TrimSpace(key) {
		case "t":
			parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
			if err != nil {
				return 0, nil, SignatureError{Reason: fmt.Sprintf("invalid timestamp %q", value)}
			}
			timestamp = parsed
			hasTimestamp = true
		case signatureScheme:
			candidates = append(candidates, strings.TrimSpace(value))
		}
	}
	if !hasTimestamp {
		return 0, nil, SignatureError{Reason: "no timestamp in header"}
	}
	return timestamp, candidates, nil
}

var _ Verifier = SignatureVerifier{}

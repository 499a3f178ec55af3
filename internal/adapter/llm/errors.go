package llm

import (
	"context"
	"errors"
	"net"
	"net/url"
	"regexp"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/xiaot623/chatd/internal/domain"
)

// translateError maps vendor errors onto the domain taxonomy.
// Cancellation passes through untouched so callers can tell it apart from failures.
func translateError(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.WrapError(domain.KindUpstreamNetwork, err, "%s: request timed out", provider)
	}

	var llmErr *llms.Error
	if errors.As(err, &llmErr) {
		kind := kindForCode(llmErr.Code)
		return domain.WrapError(kind, err, "%s: %s", provider, describeKind(kind))
	}

	// Untyped errors from clients that do not map their failures.
	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) {
		return domain.WrapError(domain.KindUpstreamNetwork, err, "%s: network error", provider)
	}
	kind := kindForMessage(strings.ToLower(err.Error()))
	return domain.WrapError(kind, err, "%s: %s", provider, describeKind(kind))
}

func kindForCode(code llms.ErrorCode) domain.ErrorKind {
	switch code {
	case llms.ErrCodeAuthentication:
		return domain.KindUpstreamAuth
	case llms.ErrCodeRateLimit, llms.ErrCodeQuotaExceeded:
		return domain.KindUpstreamRateLimit
	case llms.ErrCodeContentFilter:
		return domain.KindUpstreamContentFiltered
	}
	return domain.KindUpstreamNetwork
}

var (
	rateLimitStatus = regexp.MustCompile(`\b429\b`)
	authStatus      = regexp.MustCompile(`\b40[13]\b`)
)

func kindForMessage(msg string) domain.ErrorKind {
	switch {
	case rateLimitStatus.MatchString(msg),
		containsAny(msg, "rate limit", "rate_limit", "too many requests", "quota", "resource_exhausted", "overloaded"):
		return domain.KindUpstreamRateLimit
	case authStatus.MatchString(msg),
		containsAny(msg, "api key", "api_key", "unauthorized", "authentication", "permission denied", "permission_denied", "invalid x-api-key"):
		return domain.KindUpstreamAuth
	case containsAny(msg, "content filter", "content_filter", "content management policy", "finish reason safety", "harm_category"):
		return domain.KindUpstreamContentFiltered
	}
	return domain.KindUpstreamNetwork
}

func describeKind(kind domain.ErrorKind) string {
	switch kind {
	case domain.KindUpstreamRateLimit:
		return "rate limited"
	case domain.KindUpstreamAuth:
		return "invalid credentials"
	case domain.KindUpstreamContentFiltered:
		return "response blocked by content filter"
	}
	return "upstream error"
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Package classify maps raw provider failures to a fixed set of error codes,
// each carrying a static retry policy and user-facing message. The table is
// process-wide configuration: one source of truth per code, never mutated at
// runtime.
package classify

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mcpship/mcpship/internal/githost"
)

// Retry strategies.
const (
	StrategyImmediate = "immediate"
	StrategyBackoff   = "exponential_backoff"
	StrategyManual    = "manual"
	StrategyNone      = "none"
)

// Error codes.
const (
	CodeNetworkTimeout      = "NETWORK_TIMEOUT"
	CodeConnectionReset     = "CONNECTION_RESET"
	CodeServiceUnavailable  = "SERVICE_UNAVAILABLE"
	CodeRateLimitExceeded   = "RATE_LIMIT_EXCEEDED"
	CodeSecondaryRateLimit  = "SECONDARY_RATE_LIMIT"
	CodeInvalidCode         = "INVALID_CODE"
	CodeCompilationError    = "COMPILATION_ERROR"
	CodeMissingDependencies = "MISSING_DEPENDENCIES"
	CodeInvalidName         = "INVALID_NAME"
	CodeAuthFailed          = "AUTHENTICATION_FAILED"
	CodeInsufficientPerms   = "INSUFFICIENT_PERMISSIONS"
	CodeNameConflict        = "REPOSITORY_NAME_CONFLICT"
	CodeNotFound            = "RESOURCE_NOT_FOUND"
	CodeNoFiles             = "NO_FILES_TO_DEPLOY"
	CodeArtifactNotFound    = "ARTIFACT_NOT_FOUND"
	CodeUnknown             = "UNKNOWN_ERROR"
)

// Policy is the static retry policy attached to an error code.
type Policy struct {
	Strategy    string
	MaxRetries  int
	BaseDelay   time.Duration
	UserMessage string
}

var policyTable = map[string]Policy{
	CodeNetworkTimeout: {
		Strategy: StrategyImmediate, MaxRetries: 3, BaseDelay: time.Second,
		UserMessage: "The hosting service timed out. Retrying usually resolves this.",
	},
	CodeConnectionReset: {
		Strategy: StrategyImmediate, MaxRetries: 3, BaseDelay: time.Second,
		UserMessage: "The connection to the hosting service was interrupted. Please retry.",
	},
	CodeServiceUnavailable: {
		Strategy: StrategyImmediate, MaxRetries: 3, BaseDelay: 2 * time.Second,
		UserMessage: "The hosting service is temporarily unavailable. Please retry shortly.",
	},
	CodeRateLimitExceeded: {
		Strategy: StrategyBackoff, MaxRetries: 5, BaseDelay: 2 * time.Second,
		UserMessage: "Rate limit reached on the hosting service. Deployment will succeed after a short wait.",
	},
	CodeSecondaryRateLimit: {
		Strategy: StrategyBackoff, MaxRetries: 5, BaseDelay: 5 * time.Second,
		UserMessage: "Too many operations in a short period. Please wait before retrying.",
	},
	CodeInvalidCode: {
		Strategy: StrategyManual, MaxRetries: 0,
		UserMessage: "The generated project contains invalid code. Regenerate the artifact before deploying.",
	},
	CodeCompilationError: {
		Strategy: StrategyManual, MaxRetries: 0,
		UserMessage: "The project failed to compile. Fix the reported errors and deploy again.",
	},
	CodeMissingDependencies: {
		Strategy: StrategyManual, MaxRetries: 0,
		UserMessage: "The project references dependencies that could not be resolved.",
	},
	CodeInvalidName: {
		Strategy: StrategyManual, MaxRetries: 0,
		UserMessage: "The requested name is not valid for the hosting service. Choose another name.",
	},
	CodeAuthFailed: {
		Strategy: StrategyNone, MaxRetries: 0,
		UserMessage: "Authentication with the hosting service failed. Reconnect your account.",
	},
	CodeInsufficientPerms: {
		Strategy: StrategyNone, MaxRetries: 0,
		UserMessage: "The connected account lacks permission for this operation.",
	},
	CodeNameConflict: {
		Strategy: StrategyNone, MaxRetries: 0,
		UserMessage: "A repository with this name already exists. Pick one of the suggested names.",
	},
	CodeNotFound: {
		Strategy: StrategyNone, MaxRetries: 0,
		UserMessage: "The referenced resource no longer exists on the hosting service.",
	},
	CodeNoFiles: {
		Strategy: StrategyManual, MaxRetries: 0,
		UserMessage: "The artifact has no files to deploy. Generate the project before deploying.",
	},
	CodeArtifactNotFound: {
		Strategy: StrategyNone, MaxRetries: 0,
		UserMessage: "The source artifact could not be found.",
	},
	CodeUnknown: {
		Strategy: StrategyImmediate, MaxRetries: 1, BaseDelay: time.Second,
		UserMessage: "Deployment failed unexpectedly. A single retry may resolve this.",
	},
}

// PolicyFor returns the static policy for a code, falling back to unknown.
func PolicyFor(code string) Policy {
	if policy, ok := policyTable[code]; ok {
		return policy
	}
	return policyTable[CodeUnknown]
}

// Classification is the structured outcome of mapping a raw error.
type Classification struct {
	Code         string
	Strategy     string
	MaxRetries   int
	UserMessage  string
	RawMessage   string
	RetryAfterMS int64
}

// Classify maps a raw provider error to its code and policy. Rate-limited
// responses also carry a computed retry-after.
func Classify(err error) Classification {
	code := codeFor(err)
	policy := PolicyFor(code)
	cls := Classification{
		Code:        code,
		Strategy:    policy.Strategy,
		MaxRetries:  policy.MaxRetries,
		UserMessage: policy.UserMessage,
	}
	if err != nil {
		cls.RawMessage = err.Error()
	}
	if policy.Strategy == StrategyBackoff {
		if apiErr, ok := githost.AsAPIError(err); ok {
			cls.RetryAfterMS = ExtractRetryAfter(apiErr.Header, policy, time.Now()).Milliseconds()
		} else {
			cls.RetryAfterMS = policy.BaseDelay.Milliseconds()
		}
	}
	return cls
}

func codeFor(err error) string {
	if err == nil {
		return CodeUnknown
	}

	if apiErr, ok := githost.AsAPIError(err); ok {
		return codeForAPIError(apiErr)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CodeNetworkTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeNetworkTimeout
	}

	message := strings.ToLower(err.Error())
	switch {
	case strings.Contains(message, "connection reset"), strings.Contains(message, "broken pipe"):
		return CodeConnectionReset
	case strings.Contains(message, "timeout"), strings.Contains(message, "timed out"):
		return CodeNetworkTimeout
	case strings.Contains(message, "secondary rate limit"):
		return CodeSecondaryRateLimit
	case strings.Contains(message, "rate limit"):
		return CodeRateLimitExceeded
	case strings.Contains(message, "compilation"), strings.Contains(message, "compile error"):
		return CodeCompilationError
	case strings.Contains(message, "missing dependen"), strings.Contains(message, "unresolved dependen"):
		return CodeMissingDependencies
	case strings.Contains(message, "invalid code"), strings.Contains(message, "syntax error"):
		return CodeInvalidCode
	case strings.Contains(message, "name already exists"), strings.Contains(message, "already exists"):
		return CodeNameConflict
	case strings.Contains(message, "invalid name"):
		return CodeInvalidName
	default:
		return CodeUnknown
	}
}

func codeForAPIError(apiErr *githost.APIError) string {
	message := strings.ToLower(apiErr.Message)
	switch apiErr.StatusCode {
	case http.StatusUnauthorized:
		return CodeAuthFailed
	case http.StatusForbidden:
		if strings.Contains(message, "secondary rate limit") {
			return CodeSecondaryRateLimit
		}
		if apiErr.Header.Get("x-ratelimit-remaining") == "0" || strings.Contains(message, "rate limit") {
			return CodeRateLimitExceeded
		}
		return CodeInsufficientPerms
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusConflict:
		return CodeNameConflict
	case http.StatusTooManyRequests:
		return CodeRateLimitExceeded
	case http.StatusUnprocessableEntity:
		if strings.Contains(message, "already exists") {
			return CodeNameConflict
		}
		return CodeInvalidName
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return CodeServiceUnavailable
	default:
		if apiErr.StatusCode >= 500 {
			return CodeServiceUnavailable
		}
		return CodeUnknown
	}
}

// ExtractRetryAfter computes the wait before the next attempt: prefer the
// rate-limit-reset header (plus a 1s buffer, clamped to 60s), then a
// Retry-After header, then the code's static base delay.
func ExtractRetryAfter(header http.Header, policy Policy, now time.Time) time.Duration {
	if raw := header.Get("x-ratelimit-reset"); raw != "" {
		if epoch, err := strconv.ParseInt(raw, 10, 64); err == nil {
			wait := time.Unix(epoch, 0).Sub(now)
			if wait > 0 {
				if wait > 60*time.Second {
					wait = 60 * time.Second
				}
				return wait + time.Second
			}
		}
	}
	if raw := header.Get("retry-after"); raw != "" {
		if seconds, err := strconv.Atoi(raw); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return policy.BaseDelay
}

// CanRetry reports whether another automatic attempt is allowed for the code
// after n attempts already made.
func CanRetry(code string, attempts int) bool {
	policy := PolicyFor(code)
	if policy.Strategy == StrategyNone || policy.Strategy == StrategyManual {
		return false
	}
	return attempts < policy.MaxRetries
}

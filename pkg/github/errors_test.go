package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-github/v66/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(retries int) *RetryConfig {
	return &RetryConfig{
		MaxRetries:       retries,
		InitialDelay:     time.Millisecond,
		MaxDelay:         10 * time.Millisecond,
		BackoffFactor:    2.0,
		MaxRateLimitWait: time.Second,
	}
}

func TestGitHubError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *GitHubError
		expected string
	}{
		{
			name: "error with resource",
			err: &GitHubError{
				Type:     ErrorTypeAuth,
				Message:  "invalid token",
				Resource: "repository test/repo",
			},
			expected: "authentication error for repository test/repo: invalid token",
		},
		{
			name: "error without resource",
			err: &GitHubError{
				Type:    ErrorTypeValidation,
				Message: "validation failed",
			},
			expected: "validation error: validation failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestNewGitHubError(t *testing.T) {
	cause := errors.New("underlying error")

	err := NewGitHubError(ErrorTypeNetwork, "connection dropped", cause)
	assert.Equal(t, ErrorTypeNetwork, err.Type)
	assert.True(t, err.IsRetryable())
	assert.ErrorIs(t, err, cause)

	err = NewGitHubError(ErrorTypeAuth, "authentication failed", cause)
	assert.False(t, err.IsRetryable())
}

func TestWrapGitHubError(t *testing.T) {
	tests := []struct {
		name         string
		inputError   error
		resource     string
		expectedType ErrorType
		expectedMsg  string
		retryable    bool
	}{
		{
			name: "already GitHubError returns as-is",
			inputError: &GitHubError{
				Type:    ErrorTypeAuth,
				Message: "auth error",
			},
			resource:     "repository test/repo",
			expectedType: ErrorTypeAuth,
			expectedMsg:  "auth error",
		},
		{
			name:         "unsupported operation",
			inputError:   fmt.Errorf("%w: custom properties", ErrUnsupportedOperation),
			resource:     "repository test/repo",
			expectedType: ErrorTypeUnsupported,
			expectedMsg:  "unsupported operation: custom properties",
		},
		{
			name: "401 unauthorized error",
			inputError: &github.ErrorResponse{
				Response: &http.Response{StatusCode: http.StatusUnauthorized},
				Message:  "Bad credentials",
			},
			resource:     "repository test/repo",
			expectedType: ErrorTypeAuth,
			expectedMsg:  "Authentication failed. Please check your GitHub credentials",
		},
		{
			name: "403 forbidden on a repository",
			inputError: &github.ErrorResponse{
				Response: &http.Response{StatusCode: http.StatusForbidden},
				Message:  "Forbidden",
			},
			resource:     "repository test/repo",
			expectedType: ErrorTypePermission,
			expectedMsg:  "Required scopes: repo",
		},
		{
			name: "403 forbidden on a team",
			inputError: &github.ErrorResponse{
				Response: &http.Response{StatusCode: http.StatusForbidden},
				Message:  "Forbidden",
			},
			resource:     "team acme/platform",
			expectedType: ErrorTypePermission,
			expectedMsg:  "Required scopes: admin:org",
		},
		{
			name: "403 rate limit message",
			inputError: &github.ErrorResponse{
				Response: &http.Response{StatusCode: http.StatusForbidden},
				Message:  "API rate limit exceeded for user",
			},
			resource:     "repository test/repo",
			expectedType: ErrorTypeRateLimit,
			expectedMsg:  "rate limit exceeded",
			retryable:    true,
		},
		{
			name: "404 not found error",
			inputError: &github.ErrorResponse{
				Response: &http.Response{StatusCode: http.StatusNotFound},
				Message:  "Not Found",
			},
			resource:     "repository test/repo",
			expectedType: ErrorTypeNotFound,
			expectedMsg:  "Repository not found",
		},
		{
			name: "404 user",
			inputError: &github.ErrorResponse{
				Response: &http.Response{StatusCode: http.StatusNotFound},
			},
			resource:     "user ghost",
			expectedType: ErrorTypeNotFound,
			expectedMsg:  "User not found",
		},
		{
			name: "409 conflict error",
			inputError: &github.ErrorResponse{
				Response: &http.Response{StatusCode: http.StatusConflict},
				Message:  "Repository already exists",
			},
			resource:     "repository test/repo",
			expectedType: ErrorTypeConflict,
			expectedMsg:  "Resource already exists with the same name",
		},
		{
			name: "422 validation error with fields",
			inputError: &github.ErrorResponse{
				Response: &http.Response{StatusCode: http.StatusUnprocessableEntity},
				Message:  "Validation Failed",
				Errors: []github.Error{
					{Field: "name", Message: "is required", Code: "missing_field"},
					{Message: "Repository name is invalid"},
				},
			},
			resource:     "repository test/repo",
			expectedType: ErrorTypeValidation,
			expectedMsg:  "Validation failed: name: is required; Repository name is invalid",
		},
		{
			name: "422 validation error with message only",
			inputError: &github.ErrorResponse{
				Response: &http.Response{StatusCode: http.StatusUnprocessableEntity},
				Message:  "Visibility can't be internal",
			},
			resource:     "repository test/repo",
			expectedType: ErrorTypeValidation,
			expectedMsg:  "Validation failed: Visibility can't be internal",
		},
		{
			name: "500 server error",
			inputError: &github.ErrorResponse{
				Response: &http.Response{StatusCode: http.StatusInternalServerError},
				Message:  "Internal Server Error",
			},
			resource:     "repository test/repo",
			expectedType: ErrorTypeNetwork,
			expectedMsg:  "GitHub API is temporarily unavailable",
			retryable:    true,
		},
		{
			name:         "primary rate limit",
			inputError:   &github.RateLimitError{Response: &http.Response{StatusCode: http.StatusForbidden}},
			resource:     "repository test/repo",
			expectedType: ErrorTypeRateLimit,
			expectedMsg:  "Rate limit exceeded",
			retryable:    true,
		},
		{
			name:         "secondary rate limit",
			inputError:   &github.AbuseRateLimitError{Response: &http.Response{StatusCode: http.StatusForbidden}},
			resource:     "repository test/repo",
			expectedType: ErrorTypeRateLimit,
			expectedMsg:  "Secondary rate limit",
			retryable:    true,
		},
		{
			name:         "cancelled context",
			inputError:   fmt.Errorf("request: %w", context.Canceled),
			resource:     "repository test/repo",
			expectedType: ErrorTypeNetwork,
			expectedMsg:  "Request cancelled",
		},
		{
			name:         "network failure",
			inputError:   errors.New("dial tcp 10.0.0.1:443: connection refused"),
			resource:     "repository test/repo",
			expectedType: ErrorTypeNetwork,
			expectedMsg:  "Network error occurred",
			retryable:    true,
		},
		{
			name:         "anything else",
			inputError:   errors.New("strange"),
			resource:     "repository test/repo",
			expectedType: ErrorTypeUnknown,
			expectedMsg:  "strange",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := WrapGitHubError(tt.inputError, tt.resource)

			require.NotNil(t, result)
			assert.Equal(t, tt.expectedType, result.Type)
			assert.Contains(t, result.Message, tt.expectedMsg)
			assert.Equal(t, tt.resource, result.Resource)
			assert.Equal(t, tt.retryable, result.IsRetryable())
		})
	}

	assert.Nil(t, WrapGitHubError(nil, "repository test/repo"))
}

func TestIsNotFound(t *testing.T) {
	notFound := &github.ErrorResponse{Response: &http.Response{StatusCode: http.StatusNotFound}}

	assert.True(t, IsNotFound(notFound))
	assert.True(t, IsNotFound(WrapGitHubError(notFound, "user ghost")))
	assert.True(t, IsNotFound(fmt.Errorf("lookup: %w", WrapGitHubError(notFound, "user ghost"))))
	assert.False(t, IsNotFound(&github.ErrorResponse{Response: &http.Response{StatusCode: http.StatusForbidden}}))
	assert.False(t, IsNotFound(errors.New("not found")))
	assert.False(t, IsNotFound(nil))
}

func TestIsNetworkError(t *testing.T) {
	tests := []struct {
		err      error
		expected bool
	}{
		{errors.New("dial tcp: connection refused"), true},
		{errors.New("dial tcp: connection timeout"), true},
		{errors.New("dial tcp: no such host"), true},
		{errors.New("read tcp: i/o timeout"), true},
		{errors.New("some other error"), false},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.expected, isNetworkError(tt.err))
		})
	}
}

func TestWithRetry(t *testing.T) {
	ctx := context.Background()
	networkErr := &GitHubError{Type: ErrorTypeNetwork, Message: "network error", Retryable: true}

	t.Run("successful operation on first try", func(t *testing.T) {
		callCount := 0
		err := WithRetry(ctx, func() error {
			callCount++
			return nil
		}, fastRetry(3))

		assert.NoError(t, err)
		assert.Equal(t, 1, callCount)
	})

	t.Run("successful operation after retries", func(t *testing.T) {
		callCount := 0
		err := WithRetry(ctx, func() error {
			callCount++
			if callCount < 3 {
				return networkErr
			}
			return nil
		}, fastRetry(3))

		assert.NoError(t, err)
		assert.Equal(t, 3, callCount)
	})

	t.Run("non-retryable error fails immediately", func(t *testing.T) {
		callCount := 0
		authErr := &GitHubError{Type: ErrorTypeAuth, Message: "auth error"}
		err := WithRetry(ctx, func() error {
			callCount++
			return authErr
		}, fastRetry(3))

		assert.Same(t, authErr, err)
		assert.Equal(t, 1, callCount)
	})

	t.Run("plain errors are not retried", func(t *testing.T) {
		callCount := 0
		err := WithRetry(ctx, func() error {
			callCount++
			return errors.New("boom")
		}, fastRetry(3))

		assert.EqualError(t, err, "boom")
		assert.Equal(t, 1, callCount)
	})

	t.Run("exhausts max retries", func(t *testing.T) {
		callCount := 0
		err := WithRetry(ctx, func() error {
			callCount++
			return networkErr
		}, fastRetry(2))

		assert.ErrorContains(t, err, "operation failed after 2 retries")
		assert.ErrorIs(t, err, networkErr)
		assert.Equal(t, 3, callCount)
	})

	t.Run("no retry config runs once and returns the error unwrapped", func(t *testing.T) {
		callCount := 0
		err := WithRetry(ctx, func() error {
			callCount++
			return networkErr
		}, NoRetryConfig())

		assert.Same(t, networkErr, err)
		assert.Equal(t, 1, callCount)
	})

	t.Run("rate limit waits for the reset", func(t *testing.T) {
		callCount := 0
		resetTime := time.Now().Add(50 * time.Millisecond)

		start := time.Now()
		err := WithRetry(ctx, func() error {
			callCount++
			if callCount == 1 {
				return WrapGitHubError(&github.RateLimitError{
					Rate:     github.Rate{Reset: github.Timestamp{Time: resetTime}},
					Response: &http.Response{StatusCode: http.StatusForbidden},
				}, "repository test/repo")
			}
			return nil
		}, fastRetry(1))

		assert.NoError(t, err)
		assert.Equal(t, 2, callCount)
		assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	})

	t.Run("cancelled context stops waiting", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		cfg := fastRetry(3)
		cfg.InitialDelay = time.Hour
		err := WithRetry(cancelled, func() error { return networkErr }, cfg)

		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestPartialFailureError(t *testing.T) {
	succeeded := []string{"svc-a"}
	failed := map[string]error{
		"svc-c": errors.New("rulesets: forbidden"),
		"svc-b": errors.New("repository not found"),
	}

	err := NewPartialFailureError(succeeded, failed)

	assert.Contains(t, err.Error(), "1 operations succeeded, 2 failed")
	assert.Equal(t, succeeded, err.GetSucceededOperations())
	assert.Equal(t, []string{"svc-b", "svc-c"}, err.GetFailedOperations())
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	assert.Equal(t, 3, config.MaxRetries)
	assert.Equal(t, time.Second, config.InitialDelay)
	assert.Equal(t, 30*time.Second, config.MaxDelay)
	assert.Equal(t, 2.0, config.BackoffFactor)
	assert.Equal(t, 5*time.Minute, config.MaxRateLimitWait)
}

func TestIsRetryableErrorType(t *testing.T) {
	tests := []struct {
		errorType ErrorType
		expected  bool
	}{
		{ErrorTypeRateLimit, true},
		{ErrorTypeNetwork, true},
		{ErrorTypeAuth, false},
		{ErrorTypePermission, false},
		{ErrorTypeNotFound, false},
		{ErrorTypeValidation, false},
		{ErrorTypeConflict, false},
		{ErrorTypeUnsupported, false},
		{ErrorTypeUnknown, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.errorType), func(t *testing.T) {
			assert.Equal(t, tt.expected, isRetryableErrorType(tt.errorType))
		})
	}
}

package errors_test

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	cerrors "github.com/assistkit/chatgraph/pkg/chatgraph/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategorize(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want cerrors.Category
	}{
		{"nil", nil, cerrors.CategoryPermanent},
		{"unknown", stderrors.New("boom"), cerrors.CategoryPermanent},
		{"transient wrapped", cerrors.Transient(stderrors.New("x"), "call"), cerrors.CategoryTransient},
		{"permanent wrapped", cerrors.Permanent(stderrors.New("x"), "call"), cerrors.CategoryPermanent},
		{"http 429", &cerrors.HTTPError{StatusCode: 429}, cerrors.CategoryTransient},
		{"http 503", &cerrors.HTTPError{StatusCode: 503}, cerrors.CategoryTransient},
		{"http 401", &cerrors.HTTPError{StatusCode: 401}, cerrors.CategoryPermanent},
		{"http 404", &cerrors.HTTPError{StatusCode: 404}, cerrors.CategoryPermanent},
		{"timeout", &cerrors.TimeoutError{Operation: "call", Duration: "5s"}, cerrors.CategoryTransient},
		{"context canceled", context.Canceled, cerrors.CategoryPermanent},
		{"deadline exceeded", context.DeadlineExceeded, cerrors.CategoryPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cerrors.Categorize(tt.err))
		})
	}
}

func TestCategorizedError_Unwrap(t *testing.T) {
	inner := stderrors.New("inner")
	err := cerrors.Transient(inner, "call")

	assert.True(t, stderrors.Is(err, inner))
	assert.Contains(t, err.Error(), "transient")
}

func TestWithRetry_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	result := cerrors.WithRetry(cerrors.NoRetry, func() (int, error) {
		calls++
		return 42, nil
	})

	require.NoError(t, result.Err)
	assert.Equal(t, 42, result.Value)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_RetriesTransient(t *testing.T) {
	cfg := cerrors.NewRetryConfig(
		cerrors.WithMaxAttempts(3),
		cerrors.WithInitialBackoff(time.Millisecond),
		cerrors.WithJitter(0),
	)

	calls := 0
	result := cerrors.WithRetry(cfg, func() (string, error) {
		calls++
		if calls < 3 {
			return "", cerrors.Transient(stderrors.New("flaky"), "call")
		}
		return "ok", nil
	})

	require.NoError(t, result.Err)
	assert.Equal(t, "ok", result.Value)
	assert.Equal(t, 3, result.Attempts)
}

func TestWithRetry_StopsOnPermanent(t *testing.T) {
	cfg := cerrors.NewRetryConfig(
		cerrors.WithMaxAttempts(5),
		cerrors.WithInitialBackoff(time.Millisecond),
	)

	calls := 0
	result := cerrors.WithRetry(cfg, func() (int, error) {
		calls++
		return 0, stderrors.New("bad credentials")
	})

	require.Error(t, result.Err)
	assert.Equal(t, 1, calls)

	var catErr *cerrors.CategorizedError
	require.ErrorAs(t, result.Err, &catErr)
	assert.Equal(t, cerrors.CategoryPermanent, catErr.Category)
}

func TestWithRetry_ExhaustsAttempts(t *testing.T) {
	cfg := cerrors.NewRetryConfig(
		cerrors.WithMaxAttempts(3),
		cerrors.WithInitialBackoff(time.Millisecond),
		cerrors.WithJitter(0),
	)

	calls := 0
	result := cerrors.WithRetry(cfg, func() (int, error) {
		calls++
		return 0, cerrors.Transient(stderrors.New("still down"), "call")
	})

	require.Error(t, result.Err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, result.Attempts)
	assert.Contains(t, result.Err.Error(), "max retries exceeded")
}

func TestWithRetry_CustomRetryableFunc(t *testing.T) {
	cfg := cerrors.NewRetryConfig(
		cerrors.WithMaxAttempts(3),
		cerrors.WithInitialBackoff(time.Millisecond),
		cerrors.WithRetryableFunc(func(error) bool { return false }),
	)

	calls := 0
	result := cerrors.WithRetry(cfg, func() (int, error) {
		calls++
		return 0, cerrors.Transient(stderrors.New("x"), "call")
	})

	require.Error(t, result.Err)
	assert.Equal(t, 1, calls)
}

func TestWithRetryContext_CancelledBeforeAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := cerrors.WithRetryContext(ctx, cerrors.DefaultRetry, func(context.Context) (int, error) {
		t.Fatal("fn should not be called after cancellation")
		return 0, nil
	})

	require.Error(t, result.Err)
	assert.Equal(t, 0, result.Attempts)
}

func TestWithRetryContext_CancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	cfg := cerrors.NewRetryConfig(
		cerrors.WithMaxAttempts(3),
		cerrors.WithInitialBackoff(time.Minute),
	)

	done := make(chan cerrors.RetryResult[int])
	go func() {
		done <- cerrors.WithRetryContext(ctx, cfg, func(context.Context) (int, error) {
			return 0, cerrors.Transient(stderrors.New("flaky"), "call")
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case result := <-done:
		require.Error(t, result.Err)
		assert.Equal(t, 1, result.Attempts)
	case <-time.After(5 * time.Second):
		t.Fatal("retry did not observe cancellation")
	}
}

func TestWithRetry_OnRetryHook(t *testing.T) {
	cfg := cerrors.NewRetryConfig(
		cerrors.WithMaxAttempts(3),
		cerrors.WithInitialBackoff(time.Millisecond),
		cerrors.WithJitter(0),
	)
	var hookAttempts []int
	cfg.OnRetry = func(attempt int, err error) {
		hookAttempts = append(hookAttempts, attempt)
	}

	cerrors.WithRetry(cfg, func() (int, error) {
		return 0, cerrors.Transient(stderrors.New("flaky"), "call")
	})

	assert.Equal(t, []int{1, 2}, hookAttempts)
}

package async

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPoolExecute(t *testing.T) {
	pool := NewPool(2)
	tasks := []Task{
		{Name: "one", Execute: func(ctx context.Context) (any, error) { return 1, nil }},
		{Name: "two", Execute: func(ctx context.Context) (any, error) { return 2, nil }},
		{Name: "fail", Execute: func(ctx context.Context) (any, error) { return nil, errors.New("boom") }},
		{Name: "panic", Execute: func(ctx context.Context) (any, error) { panic("oops") }},
	}

	results := pool.Execute(context.Background(), tasks)

	assert.Len(t, results, 4)
	assert.Equal(t, 1, results["one"].Data)
	assert.Equal(t, 2, results["two"].Data)
	assert.EqualError(t, results["fail"].Err, "boom")
	assert.Error(t, results["panic"].Err)
}

func TestPoolCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := NewPool(1).Execute(ctx, []Task{
		{Name: "a", Execute: func(ctx context.Context) (any, error) { return "a", nil }},
		{Name: "b", Execute: func(ctx context.Context) (any, error) { return "b", nil }},
	})

	assert.Len(t, results, 2)
	for _, r := range results {
		if r.Err != nil {
			assert.ErrorIs(t, r.Err, context.Canceled)
		}
	}
}

// Package async runs independent read tasks on a bounded set of workers.
package async

import (
	"context"
	"fmt"
	"sync"
)

type Task struct {
	Name    string
	Execute func(ctx context.Context) (any, error)
}

type Result struct {
	Name string
	Data any
	Err  error
}

type Pool struct {
	workerCount int
}

func NewPool(workerCount int) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Pool{workerCount: workerCount}
}

// Execute runs every task and returns results keyed by task name. Tasks not
// started before ctx is done report ctx.Err().
func (p *Pool) Execute(ctx context.Context, tasks []Task) map[string]Result {
	queue := make(chan Task)
	results := make(chan Result, len(tasks))

	var wg sync.WaitGroup
	for i := 0; i < p.workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range queue {
				results <- run(ctx, task)
			}
		}()
	}

	pending := make(map[string]bool, len(tasks))
	for _, task := range tasks {
		pending[task.Name] = true
	}

dispatch:
	for _, task := range tasks {
		select {
		case queue <- task:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(queue)
	wg.Wait()
	close(results)

	collected := make(map[string]Result, len(tasks))
	for r := range results {
		collected[r.Name] = r
		delete(pending, r.Name)
	}
	for name := range pending {
		collected[name] = Result{Name: name, Err: ctx.Err()}
	}
	return collected
}

func run(ctx context.Context, task Task) (result Result) {
	result.Name = task.Name
	defer func() {
		if r := recover(); r != nil {
			result.Err = fmt.Errorf("task %s panicked: %v", task.Name, r)
		}
	}()
	result.Data, result.Err = task.Execute(ctx)
	return result
}

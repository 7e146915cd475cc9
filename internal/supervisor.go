package internal

import (
	"context"
	"fmt"
	"time"
)

// Task is an independently restartable unit of background work. Run should
// only return once its context is canceled; any other return (or a panic)
// is treated as a crash.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Supervise runs every task until the context is canceled, respawning any
// task that crashes. Tasks must be restartable from a clean slate: no
// in-process state beyond their injected handles.
func Supervise(ctx context.Context, tasks ...Task) {
	done := make(chan struct{})
	for _, task := range tasks {
		go func() {
			defer func() { done <- struct{}{} }()
			for {
				err := runTask(ctx, task)
				if ctx.Err() != nil {
					return
				}
				Log(ctx).Warn("task exited, restarting", "task", task.Name, "err", err)

				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
			}
		}()
	}
	for range tasks {
		<-done
	}
}

func runTask(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return task.Run(CtxWithLog(ctx, Log(ctx).With("task", task.Name)))
}

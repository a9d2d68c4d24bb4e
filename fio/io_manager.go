package fio

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// DefaultMaxConcurrentIO Dispatcher 默认的最大并发 IO 数
const DefaultMaxConcurrentIO = 64

// Dispatcher 异步 IO 完成设施
// 每个异步操作在独立的 goroutine 中执行, 由信号量限制同时进行的系统调用数
type Dispatcher struct {
	sem *semaphore.Weighted
}

// NewDispatcher 创建 Dispatcher, maxConcurrent <= 0 时使用默认值
func NewDispatcher(maxConcurrent int64) *Dispatcher {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentIO
	}
	return &Dispatcher{sem: semaphore.NewWeighted(maxConcurrent)}
}

// Register 将句柄绑定到 Dispatcher
func (d *Dispatcher) Register(h *Handle) (*Binding, error) {
	if h.IsClosed() {
		return nil, ErrClosed
	}
	return &Binding{d: d, h: h}, nil
}

// Binding 句柄与 Dispatcher 的绑定 释放后不再接受新的操作
type Binding struct {
	d        *Dispatcher
	h        *Handle
	released atomic.Bool
}

// Submit 提交一个异步操作 立即返回
// ctx 在获取执行槽位之前取消时, op 不会执行, 结果为 0 字节与 ctx.Err()
func (b *Binding) Submit(ctx context.Context, op func() (int, error)) *Completion {
	c := &Completion{done: make(chan struct{})}
	if b.released.Load() || b.h.IsClosed() {
		c.complete(0, ErrClosed)
		return c
	}
	go func() {
		if err := ctx.Err(); err != nil {
			c.complete(0, err)
			return
		}
		if err := b.d.sem.Acquire(ctx, 1); err != nil {
			c.complete(0, err)
			return
		}
		defer b.d.sem.Release(1)
		c.complete(op())
	}()
	return c
}

// Release 解除绑定 可重复调用
func (b *Binding) Release() {
	b.released.Store(true)
}

// Completion 异步操作的结果
type Completion struct {
	done chan struct{}
	n    int
	err  error
}

// NewCompletion 返回一个已完成的结果
func NewCompletion(n int, err error) *Completion {
	c := &Completion{done: make(chan struct{})}
	c.complete(n, err)
	return c
}

func (c *Completion) complete(n int, err error) {
	c.n, c.err = n, err
	close(c.done)
}

// Done 操作完成时关闭
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Wait 阻塞直到操作完成, 返回传输的字节数
func (c *Completion) Wait() (int, error) {
	<-c.done
	return c.n, c.err
}

package engine

import "context"

// Pending 异步请求的结果句柄，由引擎工作协程完成。
type Pending[T any] struct {
	done chan struct{}
	val  T
	err  error
}

func newPending[T any]() *Pending[T] {
	return &Pending[T]{done: make(chan struct{})}
}

func (p *Pending[T]) resolve(val T, err error) {
	p.val, p.err = val, err
	close(p.done)
}

// Done 结果就绪时关闭。
func (p *Pending[T]) Done() <-chan struct{} { return p.done }

// Await 等待结果或 ctx 结束。
func (p *Pending[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		return p.val, p.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

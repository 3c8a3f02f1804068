package consumer

import (
	"context"
	"sync"

	"github.com/heartapi/heartgate/internal/mq"
	"github.com/heartapi/heartgate/internal/pkg/logger"
)

type binding struct {
	queue   string
	handler mq.Handler
}

// Runner owns the consumer goroutines. Bind before Start; Stop cancels the
// consume loops and waits for them to drain.
type Runner struct {
	broker mq.Consumer
	group  string

	bindings []binding
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewRunner(broker mq.Consumer, group string) *Runner {
	return &Runner{broker: broker, group: group}
}

func (r *Runner) Bind(queue string, h mq.Handler) {
	r.bindings = append(r.bindings, binding{queue: queue, handler: h})
}

func (r *Runner) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	for _, b := range r.bindings {
		r.wg.Add(1)
		go func(b binding) {
			defer r.wg.Done()
			logger.Get().Info("consumer started", "queue", b.queue, "group", r.group)
			if err := r.broker.Consume(ctx, b.queue, r.group, b.handler); err != nil && ctx.Err() == nil {
				logger.Get().Error("consumer stopped", "queue", b.queue, "error", err)
			}
		}(b)
	}
}

func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

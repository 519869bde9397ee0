package runner

import (
	"context"
	"hash/fnv"
	"sync"
)

const defaultShardQueueDepth = 256

// shardPool serializes jobs per contact: every job for a given key runs on
// the same goroutine in submission order. This is what makes concurrent
// events for one contact safe without locking instance state.
type shardPool struct {
	queues []chan func(ctx context.Context)
	wg     sync.WaitGroup
	once   sync.Once
}

func newShardPool(size int) *shardPool {
	if size < 1 {
		size = 1
	}

	queues := make([]chan func(ctx context.Context), size)
	for i := range queues {
		queues[i] = make(chan func(ctx context.Context), defaultShardQueueDepth)
	}

	return &shardPool{queues: queues}
}

func (p *shardPool) size() int {
	return len(p.queues)
}

func (p *shardPool) start(ctx context.Context) {
	for _, queue := range p.queues {
		p.wg.Add(1)

		go func(queue chan func(ctx context.Context)) {
			defer p.wg.Done()

			for job := range queue {
				if ctx.Err() != nil {
					continue
				}

				job(ctx)
			}
		}(queue)
	}
}

// submit enqueues a job on the shard owning the key, blocking when the
// shard queue is full to apply backpressure upstream.
func (p *shardPool) submit(key string, job func(ctx context.Context)) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))

	p.queues[int(h.Sum32())%len(p.queues)] <- job
}

// stop closes the queues and waits for in-flight jobs to finish.
func (p *shardPool) stop() {
	p.once.Do(func() {
		for _, queue := range p.queues {
			close(queue)
		}
	})

	p.wg.Wait()
}

package tasks

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Pool — ограниченный пул для отложенных действий. Паника или ошибка
// задачи логируется и не роняет процесс.
type Pool struct {
	log  zerolog.Logger
	jobs chan func() error
	wg   sync.WaitGroup
}

// NewPool запускает пул с указанным числом воркеров.
func NewPool(logger zerolog.Logger, workers, backlog int) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{
		log:  logger,
		jobs: make(chan func() error, backlog),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		p.run(job)
	}
}

func (p *Pool) run(job func() error) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Err(fmt.Errorf("panic: %v", r)).Msg("задача завершилась паникой")
		}
	}()
	if err := job(); err != nil {
		p.log.Error().Err(err).Msg("отложенная задача завершилась ошибкой")
	}
}

// Submit ставит задачу в очередь; при переполненном бэклоге блокируется,
// при остановленном пуле — выполняет задачу синхронно.
func (p *Pool) Submit(ctx context.Context, job func() error) {
	select {
	case p.jobs <- job:
	case <-ctx.Done():
		p.run(job)
	}
}

// Close дожидается завершения всех принятых задач.
func (p *Pool) Close() {
	close(p.jobs)
	p.wg.Wait()
}

package telegram

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"tg-chatdig/internal/domain"
	"tg-chatdig/internal/infra/metrics"
)

const pollBatchLimit = 100

// Poller — длинный цикл опроса платформы. Курсор сдвигается на
// last_update_id+1 только после успешной пачки, поэтому сбой транспорта
// приводит к повторной доставке, а не к потере.
type Poller struct {
	client *Client
	queue  chan<- domain.Update
	log    zerolog.Logger
	idle   time.Duration
	offset atomic.Int64
}

// NewPoller создаёт опросчик с восстановленным курсором.
func NewPoller(client *Client, queue chan<- domain.Update, offset int64, idle time.Duration, logger zerolog.Logger) *Poller {
	p := &Poller{client: client, queue: queue, log: logger, idle: idle}
	p.offset.Store(offset)
	return p
}

// Offset возвращает текущий курсор для сохранения при останове.
func (p *Poller) Offset() int64 { return p.offset.Load() }

// Run крутит опрос до отмены контекста.
func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		updates, err := p.client.GetUpdates(p.offset.Load(), pollBatchLimit)
		if err != nil {
			p.log.Error().Err(err).Msg("не удалось получить обновления")
		} else if len(updates) > 0 {
			p.log.Debug().Int("count", len(updates)).Msg("пришли обновления")
			p.offset.Store(updates[len(updates)-1].ID + 1)
			for _, upd := range updates {
				metrics.UpdatesIngested.WithLabelValues("telegram").Inc()
				select {
				case p.queue <- upd:
				case <-ctx.Done():
					return
				}
			}
		}
		select {
		case <-time.After(p.idle):
		case <-ctx.Done():
			return
		}
	}
}

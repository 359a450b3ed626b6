package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tg-chatdig/internal/infra/metrics"
)

// respawnDelay отделяет поколения рабочего процесса друг от друга.
const respawnDelay = time.Second

// ReplySender доставляет результат задачи в чат-источник.
type ReplySender interface {
	SendText(chatID int64, text string, replyTo int64)
}

// Destination — чат и сообщение, которым адресован результат задачи.
type Destination struct {
	ChatID  int64
	ReplyID int64
}

type request struct {
	Cmd  string `json:"cmd"`
	Args []any  `json:"args"`
	ID   string `json:"id"`
}

type response struct {
	ID  string `json:"id"`
	Ret string `json:"ret"`
	Exc string `json:"exc"`
}

type process struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	out   *bufio.Scanner
	gen   string
	done  chan struct{}
}

func (p *process) dead() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Bridge владеет одним долгоживущим рабочим процессом и протоколом
// строчного JSON поверх его stdin/stdout. Выделение идентификатора и
// запись запроса атомарны под одним замком; чтение ответов крутится в
// собственном цикле и сопоставляет их только по id.
type Bridge struct {
	log    zerolog.Logger
	argv   []string
	sender ReplySender

	mu   sync.Mutex // запись в процесс и его подмена
	proc *process

	pmu     sync.Mutex
	pending map[string]Destination

	lastNano atomic.Int64
}

// NewBridge создаёт мост; процесс запускается при первом обращении.
func NewBridge(argv []string, sender ReplySender, logger zerolog.Logger) (*Bridge, error) {
	if len(argv) == 0 {
		return nil, errors.New("worker argv is empty")
	}
	return &Bridge{
		log:     logger,
		argv:    argv,
		sender:  sender,
		pending: make(map[string]Destination),
	}, nil
}

// newTaskID выдаёт уникальный монотонный идентификатор задачи —
// десятичная запись времени, чтобы не терять точность на стороне
// рабочего процесса.
func (b *Bridge) newTaskID() string {
	n := time.Now().UnixNano()
	for {
		prev := b.lastNano.Load()
		if n <= prev {
			n = prev + 1
		}
		if b.lastNano.CompareAndSwap(prev, n) {
			break
		}
	}
	return fmt.Sprintf("%d.%09d", n/1e9, n%1e9)
}

// spawn запускает новое поколение рабочего процесса. Вызывается под mu.
func (b *Bridge) spawn() error {
	cmd := exec.Command(b.argv[0], b.argv[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	out := bufio.NewScanner(stdout)
	out.Buffer(make([]byte, 64*1024), 1024*1024)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	p := &process{cmd: cmd, stdin: stdin, out: out, gen: uuid.NewString(), done: make(chan struct{})}
	go func() {
		_ = cmd.Wait()
		close(p.done)
	}()
	b.proc = p
	b.pmu.Lock()
	orphans := len(b.pending)
	b.pmu.Unlock()
	b.log.Info().Str("generation", p.gen).Int("orphaned", orphans).Msg("рабочий процесс запущен")
	return nil
}

// ensure перезапускает умерший процесс. Вызывается под mu.
func (b *Bridge) ensure() error {
	if b.proc != nil && !b.proc.dead() {
		return nil
	}
	if b.proc != nil {
		metrics.WorkerRespawns.Inc()
	}
	return b.spawn()
}

func (b *Bridge) current() *process {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ensure(); err != nil {
		b.log.Error().Err(err).Msg("не удалось запустить рабочий процесс")
		return nil
	}
	return b.proc
}

// Submit регистрирует адресата и пишет задачу в процесс. Сломанный
// канал вызывает один перезапуск и одну повторную запись; вторая
// неудача — ошибка этого вызова.
func (b *Bridge) Submit(cmd string, args []any, chatID, replyID int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ensure(); err != nil {
		return err
	}
	if args == nil {
		args = []any{}
	}
	tid := b.newTaskID()
	payload, err := json.Marshal(request{Cmd: cmd, Args: args, ID: tid})
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	b.register(tid, Destination{ChatID: chatID, ReplyID: replyID})
	if err := b.write(payload); err != nil {
		metrics.WorkerRespawns.Inc()
		if err := b.spawn(); err != nil {
			b.unregister(tid)
			return err
		}
		if err := b.write(payload); err != nil {
			b.unregister(tid)
			metrics.WorkerTasks.WithLabelValues("write_failed").Inc()
			return fmt.Errorf("write task after respawn: %w", err)
		}
	}
	b.log.Debug().Str("task", tid).Str("cmd", cmd).Msg("задача отправлена рабочему процессу")
	metrics.WorkerTasks.WithLabelValues("submitted").Inc()
	return nil
}

func (b *Bridge) write(payload []byte) error {
	if _, err := b.proc.stdin.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("write to worker: %w", err)
	}
	return nil
}

func (b *Bridge) register(tid string, dst Destination) {
	b.pmu.Lock()
	b.pending[tid] = dst
	metrics.WorkerPending.Set(float64(len(b.pending)))
	b.pmu.Unlock()
}

func (b *Bridge) unregister(tid string) (Destination, bool) {
	b.pmu.Lock()
	defer b.pmu.Unlock()
	dst, ok := b.pending[tid]
	if ok {
		delete(b.pending, tid)
		metrics.WorkerPending.Set(float64(len(b.pending)))
	}
	return dst, ok
}

// handleLine разбирает одну строку ответа и доставляет результат
// адресату. Ответ без известного id логируется и отбрасывается.
func (b *Bridge) handleLine(line string) {
	if line == "" {
		return
	}
	var resp response
	if err := json.Unmarshal([]byte(line), &resp); err != nil {
		b.log.Error().Err(err).Str("line", line).Msg("неразборчивый ответ рабочего процесса")
		return
	}
	if resp.Exc != "" {
		b.log.Error().Str("task", resp.ID).Str("exc", resp.Exc).Msg("ошибка на стороне рабочего процесса")
	}
	dst, ok := b.unregister(resp.ID)
	if !ok {
		b.log.Error().Str("task", resp.ID).Msg("ответ без ожидающей задачи отброшен")
		metrics.WorkerTasks.WithLabelValues("orphaned").Inc()
		return
	}
	ret := resp.Ret
	if ret == "" {
		ret = "Empty."
	}
	b.sender.SendText(dst.ChatID, ret, dst.ReplyID)
	metrics.WorkerTasks.WithLabelValues("completed").Inc()
}

// ReadLoop читает ответы до отмены контекста, перезапуская процесс
// после его смерти.
func (b *Bridge) ReadLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		p := b.current()
		if p == nil {
			select {
			case <-time.After(respawnDelay):
				continue
			case <-ctx.Done():
				return
			}
		}
		for p.out.Scan() {
			b.handleLine(p.out.Text())
		}
		if ctx.Err() != nil {
			return
		}
		b.log.Warn().Str("generation", p.gen).Msg("канал рабочего процесса закрылся")
		// Пауза перед новым поколением: мгновенно умирающий процесс не
		// должен превращать цикл в busy-loop перезапусков.
		select {
		case <-time.After(respawnDelay):
		case <-ctx.Done():
			return
		}
	}
}

// Restart принудительно заменяет рабочий процесс; ожидающие задачи
// прежнего поколения остаются без ответа.
func (b *Bridge) Restart() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.terminate()
	metrics.WorkerRespawns.Inc()
	return b.spawn()
}

// terminate убивает текущий процесс. Вызывается под mu.
func (b *Bridge) terminate() {
	if b.proc == nil {
		return
	}
	b.proc.stdin.Close()
	select {
	case <-b.proc.done:
	case <-time.After(3 * time.Second):
		_ = b.proc.cmd.Process.Kill()
		<-b.proc.done
	}
	b.proc = nil
}

// Stop завершает рабочий процесс при останове сервиса.
func (b *Bridge) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.terminate()
}

package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	UpdatesIngested = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "updates_ingested_total",
		Help: "Принятые события по источникам",
	}, []string{"source"})

	UpdatesClassified = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "updates_classified_total",
		Help: "События по категориям классификатора",
	}, []string{"class"})

	CommandsDispatched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "commands_dispatched_total",
		Help: "Выполненные команды",
	}, []string{"command"})

	MessagesLogged = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "messages_logged_total",
		Help: "Сообщения, записанные в журнал",
	})

	WorkerTasks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_tasks_total",
		Help: "Задачи рабочего процесса по исходу",
	}, []string{"outcome"})

	WorkerPending = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "worker_pending_tasks",
		Help: "Задачи, ожидающие ответа рабочего процесса",
	})

	WorkerRespawns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "worker_respawns_total",
		Help: "Перезапуски рабочего процесса",
	})

	IRCReconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "irc_reconnects_total",
		Help: "Переподключения к IRC",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: prometheus.DefBuckets,
	}, []string{"component", "operation", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		UpdatesIngested,
		UpdatesClassified,
		CommandsDispatched,
		MessagesLogged,
		WorkerTasks,
		WorkerPending,
		WorkerRespawns,
		IRCReconnects,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает сервисный HTTP сервер с /metrics и /healthz.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	NetworkRequestDuration.WithLabelValues(component, operation, status).Observe(time.Since(start).Seconds())
	NetworkRequestTotal.WithLabelValues(component, operation, status).Inc()
}

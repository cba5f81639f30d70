package metrics

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics содержит счётчики генерации и загрузки. Nil-значение безопасно: методы
// ничего не делают.
type Metrics struct {
	registry  *prometheus.Registry
	readings  prometheus.Counter
	rotations prometheus.Counter
	loaded    *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		readings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "datagen",
			Name:      "readings_generated_total",
			Help:      "Readings produced by the generation pipeline.",
		}),
		rotations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "datagen",
			Name:      "sink_rotations_total",
			Help:      "Times the pipeline switched to a new output sink.",
		}),
		loaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "datagen",
			Name:      "rows_loaded_total",
			Help:      "Rows accepted by the destination sink.",
		}, []string{"sink"}),
	}
	reg.MustRegister(m.readings, m.rotations, m.loaded)
	reg.MustRegister(collectors.NewGoCollector())
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ReadingGenerated() {
	if m != nil {
		m.readings.Inc()
	}
}

func (m *Metrics) SinkRotated() {
	if m != nil {
		m.rotations.Inc()
	}
}

func (m *Metrics) RowsLoaded(sink string, n int64) {
	if m != nil && n > 0 {
		m.loaded.WithLabelValues(sink).Add(float64(n))
	}
}

// Serve поднимает /metrics на addr до отмены ctx.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("metrics: serving on %s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

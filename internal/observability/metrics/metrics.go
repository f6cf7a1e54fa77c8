// Package metrics registers the Prometheus collectors shared by the query
// responder and the price publisher and exposes them over HTTP.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "oracle"

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests processed.",
	}, []string{"handler", "method", "code"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"handler", "method"})

	intents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "intents_total",
		Help:      "Classified queries by intent label.",
	}, []string{"intent"})

	upstreamFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upstream_failures_total",
		Help:      "Failed calls to external price, news and inference services.",
	}, []string{"source"})

	publishOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "publisher_runs_total",
		Help:      "Price publisher runs by outcome.",
	}, []string{"outcome"})

	registrations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "publisher_registrations_total",
		Help:      "Agent registration transactions submitted.",
	})

	lastPrice = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "publisher_last_price",
		Help:      "Last price submitted on chain, in quote currency units.",
	}, []string{"symbol"})

	lastPublish = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "publisher_last_success_timestamp_seconds",
		Help:      "Unix time of the last successful price submission.",
	}, []string{"symbol"})
)

// Publisher run outcomes.
const (
	OutcomeSubmitted        = "submitted"
	OutcomeFetchFailed      = "fetch_failed"
	OutcomeRegistrationFail = "registration_failed"
	OutcomeSubmitFailed     = "submit_failed"
)

// ObserveHTTPRequest records metrics about an HTTP request lifecycle.
func ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	httpRequests.WithLabelValues(handler, method, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(handler, method).Observe(duration.Seconds())
}

// IntentClassified counts one classified query.
func IntentClassified(label string) {
	intents.WithLabelValues(label).Inc()
}

// UpstreamFailure counts one failed call to an external service.
func UpstreamFailure(source string) {
	upstreamFailures.WithLabelValues(source).Inc()
}

// PublishOutcome counts one publisher run.
func PublishOutcome(outcome string) {
	publishOutcomes.WithLabelValues(outcome).Inc()
}

// RegistrationSubmitted counts one registration transaction.
func RegistrationSubmitted() {
	registrations.Inc()
}

// PricePublished records the last submitted price.
func PricePublished(symbol string, price float64, at time.Time) {
	lastPrice.WithLabelValues(symbol).Set(price)
	lastPublish.WithLabelValues(symbol).Set(float64(at.Unix()))
}

// Handler exposes the metrics in Prometheus text exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// StartServer launches a standalone HTTP server exposing /metrics and, when
// provided, /healthz. It blocks until ctx is cancelled or the listener fails.
func StartServer(ctx context.Context, addr string, health http.Handler) error {
	if addr == "" {
		return errors.New("metrics address is empty")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	if health != nil {
		mux.Handle("/healthz", health)
	}

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}

package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(upstreamFailures.WithLabelValues("binance"))
	UpstreamFailure("binance")
	if got := testutil.ToFloat64(upstreamFailures.WithLabelValues("binance")); got != before+1 {
		t.Fatalf("expected counter to increase by one, got %v -> %v", before, got)
	}

	PricePublished("ETHUSDT", 3456.78, time.Unix(1700000000, 0))
	if got := testutil.ToFloat64(lastPrice.WithLabelValues("ETHUSDT")); got != 3456.78 {
		t.Fatalf("unexpected last price %v", got)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	ObserveHTTPRequest("/query", "POST", 200, 20*time.Millisecond)
	IntentClassified("price")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)
	for _, want := range []string{
		`oracle_http_requests_total{code="200",handler="/query",method="POST"}`,
		`oracle_intents_total{intent="price"}`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("metrics output missing %s", want)
		}
	}
}

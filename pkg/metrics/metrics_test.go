package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegistry(t *testing.T) {
	if Registry != prometheus.DefaultRegisterer {
		t.Error("Registry should be the default Prometheus registerer")
	}
}

func TestExportsTotal(t *testing.T) {
	before := testutil.ToFloat64(ExportsTotal.WithLabelValues("consensus", StatusComplete))
	ExportsTotal.WithLabelValues("consensus", StatusComplete).Inc()

	if got := testutil.ToFloat64(ExportsTotal.WithLabelValues("consensus", StatusComplete)); got != before+1 {
		t.Errorf("enrich_exports_total = %v, want %v", got, before+1)
	}
}

func TestHandler(t *testing.T) {
	ExportDuration.WithLabelValues("single").Observe(1.5)

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "enrich_export_duration_seconds") {
		t.Error("exposition should include enrich_export_duration_seconds")
	}
}

package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestFilterAttributesDropsIdentifiers(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("business_id", "123"),
		attribute.String("owner_id", "456"),
		attribute.String("operation", "create"),
		attribute.String("stage", "hours"),
	)
	require.Len(t, attrs, 2)
	assert.Equal(t, attribute.Key("operation"), attrs[0].Key)
	assert.Equal(t, attribute.Key("stage"), attrs[1].Key)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	assert.NotPanics(t, func() {
		m.RecordProfileWrite(ctx, "create", "", 0)
		m.RecordImageUpload(ctx, "image/png", 10, nil)
		m.RecordInvalidation(ctx, nil)
	})
}

func TestHTTPMiddlewareCountsRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	httpMetrics, err := NewHTTPMetricsWith(reg)
	require.NoError(t, err)

	r := gin.New()
	r.Use(GinMiddleware(httpMetrics))
	r.GET("/api/businesses/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/businesses/42", nil))
	}

	count := testutil.ToFloat64(httpMetrics.requests.WithLabelValues("/api/businesses/:id", http.MethodGet, "204"))
	assert.Equal(t, float64(2), count)
}

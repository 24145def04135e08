package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	// Register should be safe to call multiple times
	Register()
	Register()

	assert.NotPanics(t, func() {
		IncHTTP("test_endpoint", "200")
		IncSyncTask("completed")
		IncNotification("telegram", "ok")
	})

	before := testutil.ToFloat64(transitions.WithLabelValues("activate", "ok"))
	IncTransition("activate", "ok")
	assert.Equal(t, before+1, testutil.ToFloat64(transitions.WithLabelValues("activate", "ok")))

	before = testutil.ToFloat64(pricingFallbacks)
	IncPricingFallback()
	assert.Equal(t, before+1, testutil.ToFloat64(pricingFallbacks))

	IncQuote("pallet")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "warehub_quotes_total"))
}

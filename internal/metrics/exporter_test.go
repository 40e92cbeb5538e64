package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zberg/go-vclient/pkg/vcontrold"
)

type stubTransport map[string]string

func (s stubTransport) Send(_ context.Context, command string, unit vcontrold.Unit) (*vcontrold.Response, error) {
	raw, ok := s[command]
	if !ok {
		raw = "ERR: command unknown"
	}
	return vcontrold.Decode([]byte(raw), unit, vcontrold.DefaultErrorMarkers), nil
}

func query(t *testing.T) *vcontrold.Result {
	t.Helper()
	cat, err := vcontrold.NewCatalog([]vcontrold.CommandDefinition{
		{Name: "getTempA", Unit: vcontrold.UnitCelsius},
		{Name: "getBrennerStatus", Unit: vcontrold.UnitBool},
		{Name: "getBetriebArtM1", Unit: vcontrold.UnitText},
		{Name: "getTempKist", Unit: vcontrold.UnitCelsius},
	})
	require.NoError(t, err)

	res, err := vcontrold.NewPoller(stubTransport{
		"getTempA":         "7.3 Grad Celsius",
		"getBrennerStatus": "0",
		"getBetriebArtM1":  "H+WW",
	}, cat).Query(context.Background(), vcontrold.All())
	require.NoError(t, err)
	return res
}

func TestExporter_Observe(t *testing.T) {
	e := New()
	e.Observe(query(t), nil)

	assert.Equal(t, 7.3, testutil.ToFloat64(e.value.WithLabelValues("getTempA", "celsius")))
	assert.Equal(t, 0.0, testutil.ToFloat64(e.value.WithLabelValues("getBrennerStatus", "bool")))
	assert.Equal(t, 2, testutil.CollectAndCount(e.value), "text items are not exported")
	assert.Equal(t, 1.0, testutil.ToFloat64(e.failures.WithLabelValues("getTempKist", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.queries.WithLabelValues("ok")))
}

func TestExporter_ObserveError(t *testing.T) {
	e := New()
	e.Observe(nil, errors.New("connection refused"))

	assert.Equal(t, 1.0, testutil.ToFloat64(e.queries.WithLabelValues("error")))
	assert.Equal(t, 0, testutil.CollectAndCount(e.value))
}

func TestExporter_ObserveDropsStaleValue(t *testing.T) {
	e := New()
	e.Observe(query(t), nil)
	require.Equal(t, 7.3, testutil.ToFloat64(e.value.WithLabelValues("getTempA", "celsius")))

	cat, err := vcontrold.NewCatalog([]vcontrold.CommandDefinition{
		{Name: "getTempA", Unit: vcontrold.UnitCelsius},
	})
	require.NoError(t, err)
	res, err := vcontrold.NewPoller(stubTransport{"getTempA": "ERR: Wrong result"}, cat).
		Query(context.Background(), vcontrold.All())
	require.NoError(t, err)

	e.Observe(res, nil)
	assert.Equal(t, 1, testutil.CollectAndCount(e.value), "only the burner status remains")
	assert.Equal(t, 1.0, testutil.ToFloat64(e.failures.WithLabelValues("getTempA", "failed_temporarily")))
}

func TestExporter_Handler(t *testing.T) {
	e := New()
	e.Observe(query(t), nil)

	srv := httptest.NewServer(e.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `vcontrold_value{item="getTempA",unit="celsius"} 7.3`)
	assert.Contains(t, string(body), `vcontrold_queries_total{outcome="ok"} 1`)
}

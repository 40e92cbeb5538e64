package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zberg/go-vclient/pkg/vcontrold"
)

const sampleCatalog = `
vcontrold_commands:
  get:
    getTempKist:
      description: Kesseltemperatur
      status: enabled
      unit: temperature
      groups: ['temperature', 'burner']
      devices: [2094]
    getTempA:
      description: Aussentemperatur
      unit: temperature
      groups: ['temperature']
    getBrennerStatus:
      unit: switch
      groups: ['burner']
    getTimerWWMo:
      unit: timer
      groups: ['timer']
    getPumpeStatusSolar:
      status: disabled
      unit: switch
  set:
    setTempWWsoll:
      unit: temperature
    setSystemTime:
      unit: 'T'
`

func TestParseCatalog(t *testing.T) {
	cat, err := ParseCatalog([]byte(sampleCatalog))
	require.NoError(t, err)

	assert.Equal(t, []string{"getTempKist", "getTempA", "getBrennerStatus", "getTimerWWMo", "getPumpeStatusSolar"}, cat.Items())

	members, err := cat.Group("temperature")
	require.NoError(t, err)
	assert.Equal(t, []string{"getTempKist", "getTempA"}, members)

	d, err := cat.Lookup("getTempKist")
	require.NoError(t, err)
	assert.Equal(t, vcontrold.UnitCelsius, d.Unit)
	assert.Equal(t, "Kesseltemperatur", d.Description)
	assert.Equal(t, []int{2094}, d.Devices)
	assert.True(t, d.ReadOnly)

	timer, err := cat.Lookup("getTimerWWMo")
	require.NoError(t, err)
	assert.Equal(t, "Mo", timer.Day)

	solar, err := cat.Lookup("getPumpeStatusSolar")
	require.NoError(t, err)
	assert.True(t, solar.Disabled)

	set, err := cat.LookupWrite("setTempWWsoll")
	require.NoError(t, err)
	assert.False(t, set.ReadOnly)

	_, err = cat.LookupWrite("setSystemTime")
	assert.NoError(t, err, "unknown units are tolerated for set commands")
}

func TestParseCatalog_Invalid(t *testing.T) {
	tests := map[string]string{
		"no get section": "vcontrold_commands:\n  set: {}\n",
		"bad unit":       "vcontrold_commands:\n  get:\n    getX:\n      unit: kelvin\n",
		"bad status":     "vcontrold_commands:\n  get:\n    getX:\n      status: maybe\n",
		"not a mapping":  "vcontrold_commands:\n  get: [getX]\n",
		"bad yaml":       "vcontrold_commands: [\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestDefaultCatalog(t *testing.T) {
	cat, err := LoadCatalog("")
	require.NoError(t, err)

	assert.Greater(t, cat.Len(), 50)
	for _, g := range []string{"temperature", "burner", "timer", "error"} {
		members, err := cat.Group(g)
		require.NoError(t, err, g)
		assert.NotEmpty(t, members, g)
	}

	d, err := cat.Lookup("getTempA")
	require.NoError(t, err)
	assert.Equal(t, vcontrold.UnitCelsius, d.Unit)

	d, err = cat.Lookup("getError0")
	require.NoError(t, err)
	assert.Equal(t, vcontrold.UnitFault, d.Unit)

	_, err = cat.LookupWrite("setTempWWsoll")
	assert.NoError(t, err)
}

func TestLoadCatalog_File(t *testing.T) {
	path := writeFile(t, "catalog.yaml", sampleCatalog)

	cat, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cat.Len())

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestEnsureCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "vcontrold.yaml")

	created, err := EnsureCatalog(path)
	require.NoError(t, err)
	assert.True(t, created)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultCatalogYAML(), data)

	created, err = EnsureCatalog(path)
	require.NoError(t, err)
	assert.False(t, created)
}

package seed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"reliefops/internal/analytics"
	"reliefops/internal/store"
)

const sampleBundle = `
tenant: t_test
teams:
  - id: team-alpha
    name: Alpha
    skills: [medical]
    capkg: 500
geofences:
  - name: Flood zone A
    kind: hazard
    radiusm: 800
    center: {lat: 29.76, lng: -95.36}
inventory:
  - depotid: depot-1
    sku: WTR-1L
    name: Bottled water 1L
    qty: 1200
    reorderlevel: 200
subscriptions:
  - url: https://example.org/hooks
    events: ["*"]
    secret: shh
routes:
  - id: corridor-1
    waypoints:
      - {lat: 29.70, lng: -95.40}
      - {lat: 29.80, lng: -95.30}
`

func TestLoadAndApply(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleBundle), 0o644))

	b, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "t_test", b.Tenant)
	require.Len(t, b.Teams, 1)
	require.Equal(t, 500.0, b.Teams[0].CapKg)

	ctx := context.Background()
	st := store.NewMemory()
	eng := analytics.NewEngine(analytics.Config{})
	Apply(ctx, b, st, eng, nil)

	teams, _, err := st.ListTeams(ctx, "t_test", "", 10)
	require.NoError(t, err)
	require.Len(t, teams, 1)

	zones, _, err := st.ListGeofences(ctx, "t_test", "", 10)
	require.NoError(t, err)
	require.Len(t, zones, 1)
	require.Equal(t, "hazard", zones[0].Kind)

	items, _, err := st.ListInventoryItems(ctx, "t_test", "", "", false, "", 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, 1200.0, items[0].Qty)

	subs, err := st.GetSubscriptionsForEvent(ctx, "t_test", "need.created")
	require.NoError(t, err)
	require.Len(t, subs, 1)
}

func TestLoadMissingTenantDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte("teams: []\n"), 0o644))
	b, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "t_demo", b.Tenant)
}

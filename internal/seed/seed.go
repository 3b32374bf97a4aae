// Package seed loads a YAML bundle of reference data on startup so a
// fresh deployment has teams, zones, stock, and alert subscriptions to
// work with.
package seed

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"reliefops/internal/analytics"
	"reliefops/internal/model"
	"reliefops/internal/store"
)

// Route is a named corridor the analytics engine should track units
// against.
type Route struct {
	ID        string           `yaml:"id"`
	Waypoints []model.GeoPoint `yaml:"waypoints"`
}

// Bundle is the full seed document.
type Bundle struct {
	Tenant        string                      `yaml:"tenant"`
	Teams         []model.Team                `yaml:"teams"`
	Geofences     []model.GeofenceInput       `yaml:"geofences"`
	Inventory     []model.InventoryItemIn     `yaml:"inventory"`
	Subscriptions []model.SubscriptionRequest `yaml:"subscriptions"`
	Routes        []Route                     `yaml:"routes"`
}

// Load parses a seed bundle from disk.
func Load(path string) (Bundle, error) {
	var b Bundle
	data, err := os.ReadFile(path)
	if err != nil {
		return b, fmt.Errorf("read seed %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &b); err != nil {
		return b, fmt.Errorf("parse seed %s: %w", path, err)
	}
	if b.Tenant == "" {
		b.Tenant = "t_demo"
	}
	return b, nil
}

// Apply writes the bundle into the store and registers route corridors
// with the analytics engine. Individual failures are logged and skipped
// so one bad row does not block startup.
func Apply(ctx context.Context, b Bundle, st store.Store, eng *analytics.Engine, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	for _, t := range b.Teams {
		t.TenantID = b.Tenant
		if _, err := st.UpsertTeam(ctx, t); err != nil {
			log.Warn("seed team failed", zap.String("team", t.ID), zap.Error(err))
		}
	}
	for _, g := range b.Geofences {
		if _, err := st.CreateGeofence(ctx, b.Tenant, g); err != nil {
			log.Warn("seed geofence failed", zap.String("name", g.Name), zap.Error(err))
		}
	}
	for _, it := range b.Inventory {
		if _, err := st.CreateInventoryItem(ctx, b.Tenant, it); err != nil {
			log.Warn("seed inventory failed", zap.String("sku", it.SKU), zap.Error(err))
		}
	}
	for _, sr := range b.Subscriptions {
		sr.TenantID = b.Tenant
		if _, err := st.CreateSubscription(ctx, sr); err != nil {
			log.Warn("seed subscription failed", zap.String("url", sr.URL), zap.Error(err))
		}
	}
	for _, rt := range b.Routes {
		if len(rt.Waypoints) < 2 {
			continue
		}
		wps := make([]analytics.Waypoint, len(rt.Waypoints))
		for i, wp := range rt.Waypoints {
			wps[i] = analytics.Waypoint{Lat: wp.Lat, Lng: wp.Lng}
		}
		eng.RegisterRoute(rt.ID, wps)
	}
	log.Info("seed applied",
		zap.String("tenant", b.Tenant),
		zap.Int("teams", len(b.Teams)),
		zap.Int("geofences", len(b.Geofences)),
		zap.Int("inventory", len(b.Inventory)),
		zap.Int("subscriptions", len(b.Subscriptions)),
		zap.Int("routes", len(b.Routes)),
	)
}

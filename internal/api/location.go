package api

import (
	"sync"
)

// LatestLocation holds the latest known position report for a technician.
type LatestLocation struct {
	Tenant       string  `json:"tenantId"`
	TechnicianID string  `json:"technicianId"`
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
	TS           string  `json:"ts"`
}

// LocationCache stores latest technician positions per tenant. The store
// keeps the durable copy; this cache serves the dispatch feed without a
// round trip.
type LocationCache struct {
	mu sync.Mutex
	m  map[string]LatestLocation // key: tenant|technicianId
}

func NewLocationCache() *LocationCache { return &LocationCache{m: map[string]LatestLocation{}} }

func (c *LocationCache) key(tenant, technicianID string) string {
	return tenant + "|" + technicianID
}

// Upsert stores or updates the latest position for a technician.
func (c *LocationCache) Upsert(tenant, technicianID string, lat, lng float64, ts string) {
	if tenant == "" || technicianID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[c.key(tenant, technicianID)] = LatestLocation{
		Tenant: tenant, TechnicianID: technicianID, Lat: lat, Lng: lng, TS: ts,
	}
}

// Get returns the latest position for a technician, if any.
func (c *LocationCache) Get(tenant, technicianID string) (LatestLocation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[c.key(tenant, technicianID)]
	return v, ok
}

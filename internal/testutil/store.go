// Package testutil provides in-memory doubles for the device store and
// tenant source, so engine and cli behavior can be tested without a
// running MongoDB.
package testutil

import (
	"context"
	"fmt"
	"sort"

	"github.com/roach88/devsync/internal/device"
	"github.com/roach88/devsync/internal/tenant"
)

// MemStore is an in-memory implementation of engine.DeviceStore and
// tenant.Source. Writes are applied with the same granularity as the
// MongoDB store ($set on the narrowest path), and every write is
// appended to Ops so tests can assert exactly which corrections were
// issued and in what order.
type MemStore struct {
	TenantIDs []string
	Auth      map[string]map[string]device.AuthDevice
	Inv       map[string]map[string]device.InventoryDevice

	// FailWrites injects a write failure for a device id. All writes
	// targeting that id fail; reads are unaffected.
	FailWrites map[string]error

	// TenantErr makes tenant enumeration fail.
	TenantErr error

	// Ops records every attempted write as "op tenant/device [arg]".
	Ops []string
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		Auth:       make(map[string]map[string]device.AuthDevice),
		Inv:        make(map[string]map[string]device.InventoryDevice),
		FailWrites: make(map[string]error),
	}
}

// AddTenant registers a tenant id for enumeration and initializes its
// collections.
func (m *MemStore) AddTenant(id string) {
	m.TenantIDs = append(m.TenantIDs, id)
	if m.Auth[id] == nil {
		m.Auth[id] = make(map[string]device.AuthDevice)
	}
	if m.Inv[id] == nil {
		m.Inv[id] = make(map[string]device.InventoryDevice)
	}
}

// AddAuthDevice stores a deviceauth record for a tenant.
func (m *MemStore) AddAuthDevice(tenantID string, dev device.AuthDevice) {
	if m.Auth[tenantID] == nil {
		m.Auth[tenantID] = make(map[string]device.AuthDevice)
	}
	m.Auth[tenantID][dev.ID] = dev
}

// AddInventoryDevice stores an inventory document for a tenant.
func (m *MemStore) AddInventoryDevice(tenantID string, dev device.InventoryDevice) {
	if m.Inv[tenantID] == nil {
		m.Inv[tenantID] = make(map[string]device.InventoryDevice)
	}
	m.Inv[tenantID][dev.ID] = dev
}

// Tenants implements tenant.Source over the registered tenant ids.
func (m *MemStore) Tenants(_ context.Context, f tenant.Filter) ([]string, error) {
	if m.TenantErr != nil {
		return nil, m.TenantErr
	}
	f = f.Normalize()
	var out []string
	for _, id := range m.TenantIDs {
		switch {
		case len(f.IDs) > 0:
			for _, want := range f.IDs {
				if id == want {
					out = append(out, id)
				}
			}
		case f.UpTo != "":
			if id <= f.UpTo {
				out = append(out, id)
			}
		default:
			out = append(out, id)
		}
	}
	return out, nil
}

func (m *MemStore) CountAuthDevices(_ context.Context, tenantID string) (int64, error) {
	var n int64
	for _, dev := range m.Auth[tenantID] {
		if dev.Status != device.StatusPreauthorized {
			n++
		}
	}
	return n, nil
}

func (m *MemStore) CountInventoryDevices(_ context.Context, tenantID string) (int64, error) {
	return int64(len(m.Inv[tenantID])), nil
}

// EachAuthDevice iterates non-preauthorized records ascending by id.
func (m *MemStore) EachAuthDevice(_ context.Context, tenantID string, fn func(device.AuthDevice) error) error {
	for _, id := range sortedKeys(m.Auth[tenantID]) {
		dev := m.Auth[tenantID][id]
		if dev.Status == device.StatusPreauthorized {
			continue
		}
		if err := fn(dev); err != nil {
			return err
		}
	}
	return nil
}

// EachInventoryDevice iterates inventory documents ascending by id.
// Iteration works over a key snapshot so callbacks may delete documents
// mid-scan, the way the reverse pass does against a live cursor.
func (m *MemStore) EachInventoryDevice(_ context.Context, tenantID string, fn func(device.InventoryDevice) error) error {
	for _, id := range sortedKeys(m.Inv[tenantID]) {
		dev, ok := m.Inv[tenantID][id]
		if !ok {
			continue
		}
		if err := fn(dev); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemStore) InventoryDevice(_ context.Context, tenantID, deviceID string) (*device.InventoryDevice, error) {
	dev, ok := m.Inv[tenantID][deviceID]
	if !ok {
		return nil, nil
	}
	return &dev, nil
}

func (m *MemStore) HasActiveAuthDevice(_ context.Context, tenantID, deviceID string) (bool, error) {
	dev, ok := m.Auth[tenantID][deviceID]
	return ok && dev.Status != device.StatusPreauthorized, nil
}

func (m *MemStore) InsertInventoryDevice(_ context.Context, tenantID string, dev device.InventoryDevice) error {
	m.Ops = append(m.Ops, fmt.Sprintf("insert %s/%s", tenantID, dev.ID))
	if err := m.FailWrites[dev.ID]; err != nil {
		return err
	}
	if m.Inv[tenantID] == nil {
		m.Inv[tenantID] = make(map[string]device.InventoryDevice)
	}
	m.Inv[tenantID][dev.ID] = dev
	return nil
}

// SetStatusAttribute replaces the whole identity-status attribute
// object, like $set on attributes.identity-status.
func (m *MemStore) SetStatusAttribute(_ context.Context, tenantID, deviceID, status string) error {
	m.Ops = append(m.Ops, fmt.Sprintf("set_status_attribute %s/%s %s", tenantID, deviceID, status))
	if err := m.FailWrites[deviceID]; err != nil {
		return err
	}
	dev := m.Inv[tenantID][deviceID]
	if dev.Attributes == nil {
		dev.Attributes = make(map[string]device.Attribute)
	}
	dev.Attributes[device.KeyIdentityStatus] = device.StatusAttribute(status)
	m.Inv[tenantID][deviceID] = dev
	return nil
}

// SetStatusValue updates only the value field, like $set on
// attributes.identity-status.value.
func (m *MemStore) SetStatusValue(_ context.Context, tenantID, deviceID, status string) error {
	m.Ops = append(m.Ops, fmt.Sprintf("set_status_value %s/%s %s", tenantID, deviceID, status))
	if err := m.FailWrites[deviceID]; err != nil {
		return err
	}
	dev := m.Inv[tenantID][deviceID]
	attr := dev.Attributes[device.KeyIdentityStatus]
	attr.Value = status
	dev.Attributes[device.KeyIdentityStatus] = attr
	m.Inv[tenantID][deviceID] = dev
	return nil
}

func (m *MemStore) ClampRevision(_ context.Context, tenantID, deviceID string, revision int64) error {
	m.Ops = append(m.Ops, fmt.Sprintf("clamp_revision %s/%s %d", tenantID, deviceID, revision))
	if err := m.FailWrites[deviceID]; err != nil {
		return err
	}
	dev := m.Inv[tenantID][deviceID]
	dev.Revision = revision
	m.Inv[tenantID][deviceID] = dev
	return nil
}

func (m *MemStore) DeleteInventoryDevice(_ context.Context, tenantID, deviceID string) error {
	m.Ops = append(m.Ops, fmt.Sprintf("delete %s/%s", tenantID, deviceID))
	if err := m.FailWrites[deviceID]; err != nil {
		return err
	}
	delete(m.Inv[tenantID], deviceID)
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// Database and collection naming. Each tenant's data lives in its own
// database, suffixed with the tenant id.
const (
	dbTenantAdm      = "tenantadm"
	collTenants      = "tenants"
	dbDeviceAuthBase = "deviceauth"
	dbInventoryBase  = "inventory"
	collDevices      = "devices"
)

// DataStore wraps a MongoDB client for the tenantadm, deviceauth, and
// inventory stores. Connection management, authentication, and
// transport-level retry are the driver's responsibility.
type DataStore struct {
	client *mongo.Client
}

// Open connects to MongoDB at the given URI and verifies the connection
// with a ping.
func Open(ctx context.Context, uri string) (*DataStore, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	return &DataStore{client: client}, nil
}

// Ping verifies connectivity to the primary.
func (s *DataStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the underlying client.
func (s *DataStore) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// DeviceAuthDB returns the deviceauth database name for a tenant.
func DeviceAuthDB(tenantID string) string {
	return dbDeviceAuthBase + "-" + tenantID
}

// InventoryDB returns the inventory database name for a tenant.
func InventoryDB(tenantID string) string {
	return dbInventoryBase + "-" + tenantID
}

func (s *DataStore) authDevices(tenantID string) *mongo.Collection {
	return s.client.Database(DeviceAuthDB(tenantID)).Collection(collDevices)
}

func (s *DataStore) inventoryDevices(tenantID string) *mongo.Collection {
	return s.client.Database(InventoryDB(tenantID)).Collection(collDevices)
}

func (s *DataStore) tenants() *mongo.Collection {
	return s.client.Database(dbTenantAdm).Collection(collTenants)
}

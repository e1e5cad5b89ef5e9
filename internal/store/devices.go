package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/roach88/devsync/internal/device"
)

// activeAuthFilter matches deviceauth records that participate in
// reconciliation. Preauthorized devices have no inventory counterpart
// yet and are excluded from scans, counts, and the orphan probe.
func activeAuthFilter() bson.M {
	return bson.M{"status": bson.M{"$ne": device.StatusPreauthorized}}
}

// CountAuthDevices counts a tenant's non-preauthorized deviceauth
// records.
func (s *DataStore) CountAuthDevices(ctx context.Context, tenantID string) (int64, error) {
	n, err := s.authDevices(tenantID).CountDocuments(ctx, activeAuthFilter())
	if err != nil {
		return 0, fmt.Errorf("count deviceauth devices: %w", err)
	}
	return n, nil
}

// CountInventoryDevices counts all of a tenant's inventory documents.
func (s *DataStore) CountInventoryDevices(ctx context.Context, tenantID string) (int64, error) {
	n, err := s.inventoryDevices(tenantID).CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("count inventory devices: %w", err)
	}
	return n, nil
}

// EachAuthDevice streams a tenant's non-preauthorized deviceauth
// records ascending by _id, invoking fn per record. A non-nil error
// from fn aborts the scan and is returned. The cursor is released on
// every exit path.
func (s *DataStore) EachAuthDevice(ctx context.Context, tenantID string, fn func(device.AuthDevice) error) error {
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetNoCursorTimeout(true)
	cur, err := s.authDevices(tenantID).Find(ctx, activeAuthFilter(), opts)
	if err != nil {
		return fmt.Errorf("scan deviceauth devices: %w", err)
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var dev device.AuthDevice
		if err := cur.Decode(&dev); err != nil {
			return fmt.Errorf("decode deviceauth device: %w", err)
		}
		if err := fn(dev); err != nil {
			return err
		}
	}
	if err := cur.Err(); err != nil {
		return fmt.Errorf("scan deviceauth devices: %w", err)
	}
	return nil
}

// EachInventoryDevice streams all of a tenant's inventory documents
// ascending by _id, invoking fn per document.
func (s *DataStore) EachInventoryDevice(ctx context.Context, tenantID string, fn func(device.InventoryDevice) error) error {
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetNoCursorTimeout(true)
	cur, err := s.inventoryDevices(tenantID).Find(ctx, bson.M{}, opts)
	if err != nil {
		return fmt.Errorf("scan inventory devices: %w", err)
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var dev device.InventoryDevice
		if err := cur.Decode(&dev); err != nil {
			return fmt.Errorf("decode inventory device: %w", err)
		}
		if err := fn(dev); err != nil {
			return err
		}
	}
	if err := cur.Err(); err != nil {
		return fmt.Errorf("scan inventory devices: %w", err)
	}
	return nil
}

// InventoryDevice fetches one inventory document by id. Returns
// (nil, nil) when the document does not exist.
func (s *DataStore) InventoryDevice(ctx context.Context, tenantID, deviceID string) (*device.InventoryDevice, error) {
	var dev device.InventoryDevice
	err := s.inventoryDevices(tenantID).FindOne(ctx, bson.M{"_id": deviceID}).Decode(&dev)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get inventory device %s: %w", deviceID, err)
	}
	return &dev, nil
}

// HasActiveAuthDevice reports whether a non-preauthorized deviceauth
// record exists for the id. Preauthorized records do not protect an
// inventory document from orphan deletion.
func (s *DataStore) HasActiveAuthDevice(ctx context.Context, tenantID, deviceID string) (bool, error) {
	filter := bson.M{
		"_id":    deviceID,
		"status": bson.M{"$ne": device.StatusPreauthorized},
	}
	err := s.authDevices(tenantID).FindOne(ctx, filter).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("probe deviceauth device %s: %w", deviceID, err)
	}
	return true, nil
}

// InsertInventoryDevice materializes a projection built by the
// translator. Backfill mode only.
func (s *DataStore) InsertInventoryDevice(ctx context.Context, tenantID string, dev device.InventoryDevice) error {
	if _, err := s.inventoryDevices(tenantID).InsertOne(ctx, dev); err != nil {
		return fmt.Errorf("insert inventory device %s: %w", dev.ID, err)
	}
	return nil
}

// SetStatusAttribute sets the whole identity-status attribute object.
// Used when the attribute is missing entirely.
func (s *DataStore) SetStatusAttribute(ctx context.Context, tenantID, deviceID, status string) error {
	update := bson.M{"$set": bson.M{
		"attributes." + device.KeyIdentityStatus: device.StatusAttribute(status),
	}}
	if _, err := s.inventoryDevices(tenantID).UpdateOne(ctx, bson.M{"_id": deviceID}, update); err != nil {
		return fmt.Errorf("set status attribute on %s: %w", deviceID, err)
	}
	return nil
}

// SetStatusValue updates only the value field of identity-status,
// leaving the rest of the attribute and document untouched.
func (s *DataStore) SetStatusValue(ctx context.Context, tenantID, deviceID, status string) error {
	update := bson.M{"$set": bson.M{
		"attributes." + device.KeyIdentityStatus + ".value": status,
	}}
	if _, err := s.inventoryDevices(tenantID).UpdateOne(ctx, bson.M{"_id": deviceID}, update); err != nil {
		return fmt.Errorf("set status value on %s: %w", deviceID, err)
	}
	return nil
}

// ClampRevision sets the inventory revision down to the deviceauth
// revision.
func (s *DataStore) ClampRevision(ctx context.Context, tenantID, deviceID string, revision int64) error {
	update := bson.M{"$set": bson.M{"revision": revision}}
	if _, err := s.inventoryDevices(tenantID).UpdateOne(ctx, bson.M{"_id": deviceID}, update); err != nil {
		return fmt.Errorf("clamp revision on %s: %w", deviceID, err)
	}
	return nil
}

// DeleteInventoryDevice removes one orphaned inventory document by id.
func (s *DataStore) DeleteInventoryDevice(ctx context.Context, tenantID, deviceID string) error {
	if _, err := s.inventoryDevices(tenantID).DeleteOne(ctx, bson.M{"_id": deviceID}); err != nil {
		return fmt.Errorf("delete inventory device %s: %w", deviceID, err)
	}
	return nil
}

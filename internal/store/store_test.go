package store

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/roach88/devsync/internal/tenant"
)

func TestDatabaseNaming(t *testing.T) {
	assert.Equal(t, "deviceauth-5f2a", DeviceAuthDB("5f2a"))
	assert.Equal(t, "inventory-5f2a", InventoryDB("5f2a"))
}

func TestTenantFilter_All(t *testing.T) {
	assert.Equal(t, bson.M{}, tenantFilter(tenant.Filter{}))
}

func TestTenantFilter_ExplicitIDs(t *testing.T) {
	f := tenantFilter(tenant.Filter{IDs: []string{"t1", "t2"}})
	assert.Equal(t, bson.M{"_id": bson.M{"$in": []string{"t1", "t2"}}}, f)
}

func TestTenantFilter_UpperBound(t *testing.T) {
	f := tenantFilter(tenant.Filter{UpTo: "t9"})
	assert.Equal(t, bson.M{"_id": bson.M{"$lte": "t9"}}, f)
}

// TestTenantFilter_IDsTakePrecedence: with both set, only the id set
// reaches the query.
func TestTenantFilter_IDsTakePrecedence(t *testing.T) {
	f := tenantFilter(tenant.Filter{IDs: []string{"t1"}, UpTo: "t9"})
	assert.Equal(t, bson.M{"_id": bson.M{"$in": []string{"t1"}}}, f)
}

func TestActiveAuthFilter(t *testing.T) {
	assert.Equal(t, bson.M{"status": bson.M{"$ne": "preauthorized"}}, activeAuthFilter())
}

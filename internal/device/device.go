// Package device defines the typed document shapes shared by the
// deviceauth (authoritative) and inventory (derived) stores.
//
// AuthDevice is read-only for this tool. InventoryDevice is the one
// document this tool is permitted to mutate, and only through targeted
// field updates issued by the reconciliation engine.
package device

import "time"

// Device status values used by deviceauth.
const (
	StatusPending       = "pending"
	StatusAccepted      = "accepted"
	StatusRejected      = "rejected"
	StatusPreauthorized = "preauthorized"
	StatusNoAuth        = "noauth"
)

// Attribute scopes as they appear in inventory attribute keys.
const (
	ScopeIdentity = "identity"
	ScopeSystem   = "system"
)

// KeyIdentityStatus is the inventory attribute under reconciliation:
// its value must equal the deviceauth status.
const KeyIdentityStatus = "identity-status"

// AuthDevice is the authoritative device identity record from a
// tenant's deviceauth database.
type AuthDevice struct {
	ID        string            `bson:"_id"`
	Status    string            `bson:"status"`
	Revision  int64             `bson:"revision,omitempty"`
	CreatedTS time.Time         `bson:"created_ts,omitempty"`
	UpdatedTS time.Time         `bson:"updated_ts,omitempty"`
	IDData    map[string]string `bson:"id_data_struct,omitempty"`
}

// Attribute is one inventory attribute value. Inventory keys attributes
// by "<scope>-<name>"; the name and scope are repeated inside the value.
type Attribute struct {
	Name  string `bson:"name"`
	Scope string `bson:"scope"`
	Value any    `bson:"value"`
}

// InventoryDevice is the derived device projection from a tenant's
// inventory database. Attributes may contain entries contributed by
// producers other than deviceauth; those are never touched here.
type InventoryDevice struct {
	ID         string               `bson:"_id"`
	Revision   int64                `bson:"revision,omitempty"`
	Attributes map[string]Attribute `bson:"attributes,omitempty"`
}

// AttrKey builds the inventory attribute map key for a scope and name.
func AttrKey(scope, name string) string {
	return scope + "-" + name
}

// StatusValue returns the identity-status attribute value and whether it
// is present as a string. Absence and a non-string value both report
// false; callers must treat that as "status attribute missing" rather
// than comparing against a zero value.
func (d *InventoryDevice) StatusValue() (string, bool) {
	attr, ok := d.Attributes[KeyIdentityStatus]
	if !ok {
		return "", false
	}
	s, ok := attr.Value.(string)
	if !ok {
		return "", false
	}
	return s, true
}

// StatusAttribute builds the canonical identity-status attribute object
// for a deviceauth status.
func StatusAttribute(status string) Attribute {
	return Attribute{
		Name:  "status",
		Scope: ScopeIdentity,
		Value: status,
	}
}

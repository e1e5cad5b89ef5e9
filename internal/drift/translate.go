package drift

import "github.com/roach88/devsync/internal/device"

// ToInventory builds the canonical inventory projection for a
// deviceauth record: id and revision copied, attributes seeded with the
// system timestamps, the identity status, and one identity-<key> entry
// per identity-data key.
//
// Used for backfill-mode inserts only. It must never overwrite an
// existing inventory document wholesale: inventory attributes are also
// written by producers deviceauth knows nothing about, and a full
// replace would destroy them.
func ToInventory(auth *device.AuthDevice) device.InventoryDevice {
	attrs := map[string]device.Attribute{
		device.AttrKey(device.ScopeSystem, "created_ts"): {
			Name:  "created_ts",
			Scope: device.ScopeSystem,
			Value: auth.CreatedTS,
		},
		device.AttrKey(device.ScopeSystem, "updated_ts"): {
			Name:  "updated_ts",
			Scope: device.ScopeSystem,
			Value: auth.UpdatedTS,
		},
		device.KeyIdentityStatus: device.StatusAttribute(auth.Status),
	}
	for key, value := range auth.IDData {
		attrs[device.AttrKey(device.ScopeIdentity, key)] = device.Attribute{
			Name:  key,
			Scope: device.ScopeIdentity,
			Value: value,
		}
	}

	return device.InventoryDevice{
		ID:         auth.ID,
		Revision:   auth.Revision,
		Attributes: attrs,
	}
}

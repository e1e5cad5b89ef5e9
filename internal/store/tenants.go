package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/roach88/devsync/internal/tenant"
)

// tenantDoc is the slice of a tenantadm document this tool reads.
type tenantDoc struct {
	ID string `bson:"_id"`
}

// tenantFilter translates a tenant.Filter into a tenantadm query.
// Explicit ids become $in; an upper bound becomes an inclusive $lte.
func tenantFilter(f tenant.Filter) bson.M {
	f = f.Normalize()
	switch {
	case len(f.IDs) > 0:
		return bson.M{"_id": bson.M{"$in": f.IDs}}
	case f.UpTo != "":
		return bson.M{"_id": bson.M{"$lte": f.UpTo}}
	default:
		return bson.M{}
	}
}

// Tenants enumerates tenant ids matching the filter, sorted descending
// by id. Implements tenant.Source. A query failure yields an error and
// no ids, never a partial sequence.
func (s *DataStore) Tenants(ctx context.Context, f tenant.Filter) ([]string, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: -1}})
	cur, err := s.tenants().Find(ctx, tenantFilter(f), opts)
	if err != nil {
		return nil, fmt.Errorf("enumerate tenants: %w", err)
	}
	defer cur.Close(ctx)

	var ids []string
	for cur.Next(ctx) {
		var doc tenantDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode tenant: %w", err)
		}
		ids = append(ids, doc.ID)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("enumerate tenants: %w", err)
	}
	return ids, nil
}

// Package identity implements the Identity Registry: the durable,
// read-mostly mapping between a user id, a subdomain label, and the
// Ed25519 public key used to authenticate every mutation. It is backed by
// an external document store (MongoDB), accessed by id and by equality
// query on domainName, mirroring the collaborator boundary the control
// plane's design draws around the identity document store.
package identity

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nsl-router/nsl-router/internal/apperrors"
	"github.com/nsl-router/nsl-router/internal/validate"
)

// Collection is the name of the document collection identity records live
// in, per the control plane's persisted-state description.
const Collection = "nsl-router"

// Record is one identity document.
type Record struct {
	UserID                string     `bson:"_id"`
	DomainName            string     `bson:"domainName,omitempty"`
	ServerDomain          string     `bson:"serverDomain,omitempty"`
	PublicKey             string     `bson:"publicKey,omitempty"`
	LastSeenOnline        *time.Time `bson:"lastSeenOnline,omitempty"`
	LastRouteRegistration *time.Time `bson:"lastRouteRegistration,omitempty"`
}

// Registry is the Identity Registry.
type Registry struct {
	coll  *mongo.Collection
	clock clockSource
}

// clockSource lets tests substitute a deterministic clock; production code
// uses realClock{}.
type clockSource interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// New builds a Registry backed by the given database's identity
// collection, creating the unique index on domainName if it does not
// already exist.
func New(ctx context.Context, db *mongo.Database) (*Registry, error) {
	coll := db.Collection(Collection)
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "domainName", Value: 1}},
		Options: options.Index().SetUnique(true).SetSparse(true),
	})
	if err != nil {
		return nil, apperrors.InfrastructureError("creating domainName index: %s", err)
	}
	return &Registry{coll: coll, clock: realClock{}}, nil
}

// GetByID fetches the identity record for userID, or (nil, nil) if absent.
func (r *Registry) GetByID(ctx context.Context, userID string) (*Record, error) {
	var rec Record
	err := r.coll.FindOne(ctx, bson.M{"_id": userID}).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.InfrastructureError("fetching identity record: %s", err)
	}
	return &rec, nil
}

// GetByDomain fetches the identity record owning label, or (nil, nil) if
// no record owns it. Callers are expected to have lower-cased label
// already; this layer performs an exact, case-sensitive equality query.
func (r *Registry) GetByDomain(ctx context.Context, label string) (*Record, error) {
	var rec Record
	err := r.coll.FindOne(ctx, bson.M{"domainName": label}).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.InfrastructureError("fetching identity record by domain: %s", err)
	}
	return &rec, nil
}

// AvailabilityResult is the outcome of a label availability check.
type AvailabilityResult struct {
	Available bool
	Reason    string
}

// CheckAvailability validates label syntax, checks the reserved-label set,
// and then checks for an existing owner, in that order.
func (r *Registry) CheckAvailability(ctx context.Context, label string) (AvailabilityResult, error) {
	if !validate.Label(label) {
		return AvailabilityResult{Available: false, Reason: "Domain name must be lowercase letters and digits only, 1-63 characters."}, nil
	}
	if validate.ReservedLabels[label] {
		return AvailabilityResult{Available: false, Reason: "Domain name is not available."}, nil
	}
	owner, err := r.GetByDomain(ctx, label)
	if err != nil {
		return AvailabilityResult{}, err
	}
	if owner != nil {
		return AvailabilityResult{Available: false, Reason: "Domain name is not available."}, nil
	}
	return AvailabilityResult{Available: true, Reason: "Domain name is available."}, nil
}

// Upsert merge-writes partial fields into userID's identity record. If
// domainName is present among the fields, the label's ownership is
// enforced: it must be unowned or already owned by userID. Fields whose
// value is nil are ignored ("undefined", in the spec's terms). Passing an
// entirely empty merge is rejected.
func (r *Registry) Upsert(ctx context.Context, userID string, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return apperrors.ValidationError("upsert requires at least one field")
	}

	set := bson.M{}
	for k, v := range fields {
		if v == nil {
			continue
		}
		set[k] = v
	}
	if len(set) == 0 {
		return apperrors.ValidationError("upsert requires at least one non-nil field")
	}

	if label, ok := set["domainName"].(string); ok {
		owner, err := r.GetByDomain(ctx, label)
		if err != nil {
			return err
		}
		if owner != nil && owner.UserID != userID {
			return apperrors.ConflictError("domain %q is already owned by another user", label)
		}
	}

	_, err := r.coll.UpdateByID(ctx, userID, bson.M{"$set": set}, options.Update().SetUpsert(true))
	if err != nil {
		return apperrors.InfrastructureError("upserting identity record: %s", err)
	}
	return nil
}

// Delete hard-deletes userID's identity record.
func (r *Registry) Delete(ctx context.Context, userID string) error {
	_, err := r.coll.DeleteOne(ctx, bson.M{"_id": userID})
	if err != nil {
		return apperrors.InfrastructureError("deleting identity record: %s", err)
	}
	return nil
}

// ClearDomainAssignment unsets domainName and publicKey while leaving the
// rest of the record intact; this is the Cleanup Controller's "release"
// operation.
func (r *Registry) ClearDomainAssignment(ctx context.Context, userID string) error {
	_, err := r.coll.UpdateByID(ctx, userID, bson.M{
		"$unset": bson.M{"domainName": "", "publicKey": ""},
	})
	if err != nil {
		return apperrors.InfrastructureError("clearing domain assignment: %s", err)
	}
	return nil
}

// TouchHeartbeat stamps lastSeenOnline with the current time. It fails if
// the record does not exist.
func (r *Registry) TouchHeartbeat(ctx context.Context, userID string) (time.Time, error) {
	return r.touch(ctx, userID, "lastSeenOnline")
}

// TouchRouteRegistration stamps lastRouteRegistration with the current
// time.
func (r *Registry) TouchRouteRegistration(ctx context.Context, userID string) (time.Time, error) {
	return r.touch(ctx, userID, "lastRouteRegistration")
}

func (r *Registry) touch(ctx context.Context, userID, field string) (time.Time, error) {
	now := r.clock.Now()
	result, err := r.coll.UpdateByID(ctx, userID, bson.M{"$set": bson.M{field: now}})
	if err != nil {
		return time.Time{}, apperrors.InfrastructureError("updating %s: %s", field, err)
	}
	if result.MatchedCount == 0 {
		return time.Time{}, apperrors.NotFoundError("user %s does not exist", userID)
	}
	return now, nil
}

// IsOnline reports whether a user last heartbeat within thresholdSeconds
// of now. A missing timestamp is always offline.
func IsOnline(rec *Record, now time.Time, thresholdSeconds int) bool {
	if rec == nil || rec.LastSeenOnline == nil {
		return false
	}
	return now.Sub(*rec.LastSeenOnline) <= time.Duration(thresholdSeconds)*time.Second
}

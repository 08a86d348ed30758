package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/clinicore/ehr-api/internal/core/domain"
	"github.com/clinicore/ehr-api/internal/core/ports"
)

const collectionRequests = "registration_requests"

// RegistrationRepository implements ports.RegistrationRepository on MongoDB.
// Transition is a single findOneAndUpdate whose filter carries the expected
// current status, which is the whole serialization story: no torn
// read-check-write, and the loser of a concurrent transition matches nothing.
type RegistrationRepository struct {
	col *mongo.Collection
}

func NewRegistrationRepository(db *mongo.Database) *RegistrationRepository {
	return &RegistrationRepository{col: db.Collection(collectionRequests)}
}

func (r *RegistrationRepository) Insert(ctx context.Context, req *domain.RegistrationRequest) (*domain.RegistrationRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if _, err := r.col.InsertOne(ctx, req); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrRequestConflict
		}
		return nil, fmt.Errorf("insert registration request: %w", err)
	}
	return req, nil
}

func (r *RegistrationRepository) FindByEmail(ctx context.Context, email string) (*domain.RegistrationRequest, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *RegistrationRepository) FindByID(ctx context.Context, id string) (*domain.RegistrationRequest, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *RegistrationRepository) findOne(ctx context.Context, filter bson.M) (*domain.RegistrationRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var req domain.RegistrationRequest
	if err := r.col.FindOne(ctx, filter).Decode(&req); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrRequestNotFound
		}
		return nil, fmt.Errorf("find registration request: %w", err)
	}
	return &req, nil
}

// Transition applies patch iff the request's current status is one of from.
func (r *RegistrationRepository) Transition(ctx context.Context, id string, from []domain.RegistrationStatus, patch ports.RequestPatch) (*domain.RegistrationRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	set := bson.M{"updated_at": time.Now().UTC()}
	unset := bson.M{}

	if patch.Status != nil {
		set["status"] = string(*patch.Status)
	}
	setOrUnsetString(set, unset, "verification_code", patch.VerificationCode)
	setOrUnsetTime(set, unset, "code_expires_at", patch.CodeExpiresAt)
	setOrUnsetString(set, unset, "completion_token", patch.CompletionToken)
	setOrUnsetTime(set, unset, "token_expires_at", patch.TokenExpiresAt)
	setOrUnsetString(set, unset, "approved_by", patch.ApprovedBy)
	setOrUnsetTime(set, unset, "approved_at", patch.ApprovedAt)
	setOrUnsetString(set, unset, "admin_notes", patch.AdminNotes)
	setOrUnsetString(set, unset, "rejection_reason", patch.RejectionReason)

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	statuses := make([]string, 0, len(from))
	for _, s := range from {
		statuses = append(statuses, string(s))
	}
	filter := bson.M{"_id": id, "status": bson.M{"$in": statuses}}

	var updated domain.RegistrationRequest
	err := r.col.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if err == nil {
		return &updated, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("transition registration request: %w", err)
	}

	// No match: distinguish a missing request from a failed status guard.
	if _, ferr := r.FindByID(ctx, id); ferr != nil {
		return nil, ferr
	}
	return nil, domain.ErrInvalidState
}

func (r *RegistrationRepository) List(ctx context.Context, filter ports.ListRequestsFilter) ([]*domain.RegistrationRequest, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := bson.M{}
	if filter.Status != "" {
		query["status"] = string(filter.Status)
	}

	total, err := r.col.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("count registration requests: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "requested_at", Value: -1}}).
		SetSkip(int64((filter.Page - 1) * filter.Limit)).
		SetLimit(int64(filter.Limit))

	cur, err := r.col.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list registration requests: %w", err)
	}
	defer cur.Close(ctx)

	var items []*domain.RegistrationRequest
	if err := cur.All(ctx, &items); err != nil {
		return nil, 0, fmt.Errorf("decode registration requests: %w", err)
	}
	return items, total, nil
}

// EnsureIndexes creates the unique email index on the requests collection.
func (r *RegistrationRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "requested_at", Value: -1}}},
	}
	_, err := r.col.Indexes().CreateMany(ctx, indexes)
	return err
}

// setOrUnsetString routes a patch field to $set, or to $unset when the patch
// explicitly clears it with the empty value.
func setOrUnsetString(set, unset bson.M, key string, v *string) {
	if v == nil {
		return
	}
	if *v == "" {
		unset[key] = ""
		return
	}
	set[key] = *v
}

func setOrUnsetTime(set, unset bson.M, key string, v *time.Time) {
	if v == nil {
		return
	}
	if v.IsZero() {
		unset[key] = ""
		return
	}
	set[key] = v.UTC()
}

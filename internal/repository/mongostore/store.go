// Package mongostore implements the repositories on MongoDB. The approval
// ledger is embedded in each change request document, so a decision is a
// single conditional update guarded by the document version.
package mongostore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/spec-kit/change-service/internal/domain"
	"github.com/spec-kit/change-service/internal/repository"
)

// Collection names.
const (
	ChangeRequestsCollection = "change_requests"
	RiskMatricesCollection   = "risk_matrices"
	CategoriesCollection     = "change_categories"
	WorkflowsCollection      = "approval_workflows"
)

// New wires repositories onto db.
func New(db *mongo.Database) *repository.Store {
	changes := &changeRepository{coll: db.Collection(ChangeRequestsCollection)}
	return &repository.Store{
		Changes:    changes,
		Ledger:     changes,
		Matrices:   &matrixRepository{coll: db.Collection(RiskMatricesCollection)},
		Categories: &categoryRepository{coll: db.Collection(CategoriesCollection)},
		Workflows:  &workflowRepository{coll: db.Collection(WorkflowsCollection)},
		Ping: func(ctx context.Context) error {
			return db.Client().Ping(ctx, nil)
		},
	}
}

// EnsureIndexes creates the uniqueness and lookup indexes the repositories rely on.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	unique := options.Index().SetUnique(true)
	specs := map[string][]mongo.IndexModel{
		ChangeRequestsCollection: {
			{Keys: bson.D{{Key: "orgId", Value: 1}, {Key: "changeNumber", Value: 1}}, Options: unique},
			{
				Keys: bson.D{{Key: "orgId", Value: 1}, {Key: "requestKey", Value: 1}},
				Options: options.Index().SetUnique(true).
					SetPartialFilterExpression(bson.M{"requestKey": bson.M{"$exists": true}}),
			},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "_id", Value: 1}}},
			{Keys: bson.D{{Key: "orgId", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
		RiskMatricesCollection: {{Keys: bson.D{{Key: "orgId", Value: 1}, {Key: "name", Value: 1}}, Options: unique}},
		CategoriesCollection:   {{Keys: bson.D{{Key: "orgId", Value: 1}, {Key: "name", Value: 1}}, Options: unique}},
		WorkflowsCollection:    {{Keys: bson.D{{Key: "orgId", Value: 1}, {Key: "name", Value: 1}}, Options: unique}},
	}
	for name, models := range specs {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", name, err)
		}
	}
	return nil
}

func mapMongoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return repository.ErrNotFound
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %v", repository.ErrDuplicate, err)
	}
	return err
}

type changeRepository struct {
	coll *mongo.Collection
}

func (r *changeRepository) Create(ctx context.Context, cr *domain.ChangeRequest) error {
	cr.Version = 1
	_, err := r.coll.InsertOne(ctx, toChangeDocument(cr))
	return mapMongoError(err)
}

func (r *changeRepository) GetByID(ctx context.Context, orgID, id string) (*domain.ChangeRequest, error) {
	return r.findOne(ctx, bson.M{"_id": id, "orgId": orgID})
}

func (r *changeRepository) GetByRequestKey(ctx context.Context, orgID, key string) (*domain.ChangeRequest, error) {
	return r.findOne(ctx, bson.M{"orgId": orgID, "requestKey": key})
}

func (r *changeRepository) findOne(ctx context.Context, filter bson.M) (*domain.ChangeRequest, error) {
	opts := options.FindOne().SetProjection(bson.M{"approvals": 0})
	var doc changeDocument
	if err := r.coll.FindOne(ctx, filter, opts).Decode(&doc); err != nil {
		return nil, mapMongoError(err)
	}
	cr := doc.toDomain()
	return &cr, nil
}

func (r *changeRepository) List(ctx context.Context, orgID string, filter repository.ChangeFilter) ([]domain.ChangeRequest, error) {
	filter = filter.Normalize()
	query := bson.M{"orgId": orgID}
	if len(filter.Statuses) > 0 {
		query["status"] = bson.M{"$in": filter.Statuses}
	}
	if len(filter.RiskLevels) > 0 {
		query["riskLevel"] = bson.M{"$in": filter.RiskLevels}
	}
	if filter.RequesterID != nil {
		query["requesterId"] = *filter.RequesterID
	}
	if filter.CategoryID != nil {
		query["categoryId"] = *filter.CategoryID
	}
	opts := options.Find().
		SetProjection(bson.M{"approvals": 0}).
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(filter.Offset)).
		SetLimit(int64(filter.Limit))
	return r.find(ctx, query, opts)
}

func (r *changeRepository) ListAwaitingApproval(ctx context.Context, afterID string, limit int) ([]domain.ChangeRequest, error) {
	if limit <= 0 {
		limit = 100
	}
	query := bson.M{"status": domain.ChangeStatusPendingApproval, "_id": bson.M{"$gt": afterID}}
	opts := options.Find().
		SetProjection(bson.M{"approvals": 0}).
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetLimit(int64(limit))
	return r.find(ctx, query, opts)
}

func (r *changeRepository) find(ctx context.Context, query bson.M, opts *options.FindOptions) ([]domain.ChangeRequest, error) {
	cursor, err := r.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []changeDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]domain.ChangeRequest, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.toDomain())
	}
	return out, nil
}

func (r *changeRepository) Update(ctx context.Context, cr *domain.ChangeRequest, expectedVersion int64) error {
	return r.conditionalUpdate(ctx, cr, expectedVersion, bson.M{"$set": mutableFields(cr, expectedVersion+1)})
}

func (r *changeRepository) ApplyDecision(ctx context.Context, cr *domain.ChangeRequest, expectedVersion int64, record *domain.ChangeApprovalRecord) error {
	update := bson.M{
		"$set":  mutableFields(cr, expectedVersion+1),
		"$push": bson.M{"approvals": toApprovalDocument(record)},
	}
	return r.conditionalUpdate(ctx, cr, expectedVersion, update)
}

func (r *changeRepository) conditionalUpdate(ctx context.Context, cr *domain.ChangeRequest, expectedVersion int64, update bson.M) error {
	filter := bson.M{"_id": cr.ID, "orgId": cr.OrgID, "version": expectedVersion}
	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return mapMongoError(err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrVersionConflict
	}
	cr.Version = expectedVersion + 1
	return nil
}

func (r *changeRepository) ListByRequest(ctx context.Context, orgID, changeRequestID string) ([]domain.ChangeApprovalRecord, error) {
	opts := options.FindOne().SetProjection(bson.M{"approvals": 1})
	var doc struct {
		Approvals []approvalDocument `bson:"approvals"`
	}
	if err := r.coll.FindOne(ctx, bson.M{"_id": changeRequestID, "orgId": orgID}, opts).Decode(&doc); err != nil {
		return nil, mapMongoError(err)
	}
	out := make([]domain.ChangeApprovalRecord, 0, len(doc.Approvals))
	for _, approval := range doc.Approvals {
		out = append(out, approval.toDomain(orgID, changeRequestID))
	}
	return out, nil
}

func mutableFields(cr *domain.ChangeRequest, version int64) bson.M {
	return bson.M{
		"title":                cr.Title,
		"description":          cr.Description,
		"status":               cr.Status,
		"currentStep":          cr.CurrentStep,
		"submittedAt":          cr.SubmittedAt,
		"plannedStartDate":     cr.PlannedStartDate,
		"plannedEndDate":       cr.PlannedEndDate,
		"actualStartDate":      cr.ActualStartDate,
		"actualEndDate":        cr.ActualEndDate,
		"approvedBy":           cr.ApprovedBy,
		"approvedAt":           cr.ApprovedAt,
		"rejectedBy":           cr.RejectedBy,
		"rejectedAt":           cr.RejectedAt,
		"rejectionReason":      cr.RejectionReason,
		"escalationNotifiedAt": cr.EscalationNotifiedAt,
		"version":              version,
		"updatedAt":            cr.UpdatedAt,
	}
}

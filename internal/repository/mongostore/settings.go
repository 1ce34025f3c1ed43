package mongostore

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/spec-kit/change-service/internal/domain"
	"github.com/spec-kit/change-service/internal/repository"
)

func replaceExisting(ctx context.Context, coll *mongo.Collection, orgID, id string, doc any) error {
	res, err := coll.ReplaceOne(ctx, bson.M{"_id": id, "orgId": orgID}, doc)
	if err != nil {
		return mapMongoError(err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func deleteExisting(ctx context.Context, coll *mongo.Collection, orgID, id string) error {
	res, err := coll.DeleteOne(ctx, bson.M{"_id": id, "orgId": orgID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func findAll[D any](ctx context.Context, coll *mongo.Collection, orgID string, sort bson.D) ([]D, error) {
	cursor, err := coll.Find(ctx, bson.M{"orgId": orgID}, options.Find().SetSort(sort))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var docs []D
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

type matrixRepository struct {
	coll *mongo.Collection
}

func (r *matrixRepository) Create(ctx context.Context, matrix *domain.RiskMatrix) error {
	_, err := r.coll.InsertOne(ctx, toMatrixDocument(matrix))
	return mapMongoError(err)
}

func (r *matrixRepository) Update(ctx context.Context, matrix *domain.RiskMatrix) error {
	return replaceExisting(ctx, r.coll, matrix.OrgID, matrix.ID, toMatrixDocument(matrix))
}

func (r *matrixRepository) Delete(ctx context.Context, orgID, id string) error {
	return deleteExisting(ctx, r.coll, orgID, id)
}

func (r *matrixRepository) GetByID(ctx context.Context, orgID, id string) (*domain.RiskMatrix, error) {
	var doc matrixDocument
	if err := r.coll.FindOne(ctx, bson.M{"_id": id, "orgId": orgID}).Decode(&doc); err != nil {
		return nil, mapMongoError(err)
	}
	matrix := doc.toDomain()
	return &matrix, nil
}

func (r *matrixRepository) List(ctx context.Context, orgID string) ([]domain.RiskMatrix, error) {
	docs, err := findAll[matrixDocument](ctx, r.coll, orgID, bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	if err != nil {
		return nil, err
	}
	out := make([]domain.RiskMatrix, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.toDomain())
	}
	return out, nil
}

type categoryRepository struct {
	coll *mongo.Collection
}

func (r *categoryRepository) Create(ctx context.Context, category *domain.ChangeCategory) error {
	_, err := r.coll.InsertOne(ctx, toCategoryDocument(category))
	return mapMongoError(err)
}

func (r *categoryRepository) Update(ctx context.Context, category *domain.ChangeCategory) error {
	return replaceExisting(ctx, r.coll, category.OrgID, category.ID, toCategoryDocument(category))
}

func (r *categoryRepository) Delete(ctx context.Context, orgID, id string) error {
	return deleteExisting(ctx, r.coll, orgID, id)
}

func (r *categoryRepository) GetByID(ctx context.Context, orgID, id string) (*domain.ChangeCategory, error) {
	var doc categoryDocument
	if err := r.coll.FindOne(ctx, bson.M{"_id": id, "orgId": orgID}).Decode(&doc); err != nil {
		return nil, mapMongoError(err)
	}
	category := doc.toDomain()
	return &category, nil
}

func (r *categoryRepository) List(ctx context.Context, orgID string) ([]domain.ChangeCategory, error) {
	docs, err := findAll[categoryDocument](ctx, r.coll, orgID, bson.D{{Key: "sortOrder", Value: 1}, {Key: "name", Value: 1}})
	if err != nil {
		return nil, err
	}
	out := make([]domain.ChangeCategory, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.toDomain())
	}
	return out, nil
}

type workflowRepository struct {
	coll *mongo.Collection
}

func (r *workflowRepository) Create(ctx context.Context, wf *domain.ApprovalWorkflow) error {
	_, err := r.coll.InsertOne(ctx, toWorkflowDocument(wf))
	return mapMongoError(err)
}

func (r *workflowRepository) Update(ctx context.Context, wf *domain.ApprovalWorkflow) error {
	return replaceExisting(ctx, r.coll, wf.OrgID, wf.ID, toWorkflowDocument(wf))
}

func (r *workflowRepository) Delete(ctx context.Context, orgID, id string) error {
	return deleteExisting(ctx, r.coll, orgID, id)
}

func (r *workflowRepository) GetByID(ctx context.Context, orgID, id string) (*domain.ApprovalWorkflow, error) {
	var doc workflowDocument
	if err := r.coll.FindOne(ctx, bson.M{"_id": id, "orgId": orgID}).Decode(&doc); err != nil {
		return nil, mapMongoError(err)
	}
	wf := doc.toDomain()
	return &wf, nil
}

func (r *workflowRepository) List(ctx context.Context, orgID string) ([]domain.ApprovalWorkflow, error) {
	sort := bson.D{{Key: "priority", Value: 1}, {Key: "name", Value: 1}, {Key: "_id", Value: 1}}
	docs, err := findAll[workflowDocument](ctx, r.coll, orgID, sort)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ApprovalWorkflow, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.toDomain())
	}
	return out, nil
}

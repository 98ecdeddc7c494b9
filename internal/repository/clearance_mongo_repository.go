package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/noah-isme/nodues-api/internal/models"
)

// ClearanceCollection is the MongoDB collection holding clearance documents.
const ClearanceCollection = "clearance_requests"

// MongoClearanceRepository persists clearance requests as MongoDB documents.
type MongoClearanceRepository struct {
	coll *mongo.Collection
}

// NewMongoClearanceRepository constructs the repository on the given database.
func NewMongoClearanceRepository(db *mongo.Database) *MongoClearanceRepository {
	return &MongoClearanceRepository{coll: db.Collection(ClearanceCollection)}
}

// EnsureIndexes creates the indexes backing student lookups and listing.
func (r *MongoClearanceRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "studentId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "overallStatus", Value: 1}, {Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}},
		{
			Keys: bson.D{{Key: "studentId", Value: 1}},
			Options: options.Index().
				SetName("uniq_pending_per_student").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"overallStatus": models.ClearanceStatusPending}),
		},
	})
	if err != nil {
		return fmt.Errorf("create clearance indexes: %w", err)
	}
	return nil
}

// Create inserts a new request document.
func (r *MongoClearanceRepository) Create(ctx context.Context, req *models.ClearanceRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.OverallStatus == "" {
		req.OverallStatus = models.ClearanceStatusPending
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	req.UpdatedAt = req.CreatedAt
	if _, err := r.coll.InsertOne(ctx, req); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateActive
		}
		return fmt.Errorf("insert clearance request: %w", err)
	}
	return nil
}

// GetByID fetches a request by identifier.
func (r *MongoClearanceRepository) GetByID(ctx context.Context, id string) (*models.ClearanceRequest, error) {
	return r.findOne(ctx, bson.M{"_id": id}, nil)
}

// FindLatestByStudent returns the most recent request raised by the student.
func (r *MongoClearanceRepository) FindLatestByStudent(ctx context.Context, studentID string) (*models.ClearanceRequest, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	return r.findOne(ctx, bson.M{"studentId": studentID}, opts)
}

// ExistsForStudent reports whether the student owns a request in one of the given overall statuses.
func (r *MongoClearanceRepository) ExistsForStudent(ctx context.Context, studentID string, statuses []models.ClearanceStatus) (bool, error) {
	if len(statuses) == 0 {
		return false, nil
	}
	filter := bson.M{"studentId": studentID, "overallStatus": bson.M{"$in": statuses}}
	n, err := r.coll.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count active clearance requests: %w", err)
	}
	return n > 0, nil
}

// List returns a page of requests, newest first, plus the total matching count.
func (r *MongoClearanceRepository) List(ctx context.Context, filter models.ClearanceFilter) ([]models.ClearanceRequest, int, error) {
	offset := filter.Normalize()
	query := mongoListFilter(filter)

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(filter.PageSize))
	cur, err := r.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list clearance requests: %w", err)
	}
	items := make([]models.ClearanceRequest, 0, filter.PageSize)
	if err := cur.All(ctx, &items); err != nil {
		return nil, 0, fmt.Errorf("decode clearance requests: %w", err)
	}

	total, err := r.coll.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("count clearance requests: %w", err)
	}
	return items, int(total), nil
}

// UpdateDepartment sets the sub-fields of one department entry with a single atomic update and bumps the
// version. Remarks are only touched when provided.
func (r *MongoClearanceRepository) UpdateDepartment(ctx context.Context, params UpdateDepartmentParams) (*models.ClearanceRequest, error) {
	filter, update := mongoDepartmentUpdate(params)
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var req models.ClearanceRequest
	err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&req)
	if err == nil {
		return &req, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("update department clearance: %w", err)
	}
	n, countErr := r.coll.CountDocuments(ctx, bson.M{"_id": params.RequestID}, options.Count().SetLimit(1))
	if countErr != nil {
		return nil, fmt.Errorf("check clearance request: %w", countErr)
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	return nil, ErrUnknownDepartment
}

// UpdateOverallStatus stores the derived overall status if no department write happened since expectedVersion.
func (r *MongoClearanceRepository) UpdateOverallStatus(ctx context.Context, id string, status models.ClearanceStatus, expectedVersion int64) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "version": expectedVersion},
		bson.M{"$set": bson.M{"overallStatus": status, "updatedAt": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("update overall status: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (r *MongoClearanceRepository) findOne(ctx context.Context, filter bson.M, opts *options.FindOneOptions) (*models.ClearanceRequest, error) {
	var req models.ClearanceRequest
	var res *mongo.SingleResult
	if opts != nil {
		res = r.coll.FindOne(ctx, filter, opts)
	} else {
		res = r.coll.FindOne(ctx, filter)
	}
	if err := res.Decode(&req); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find clearance request: %w", err)
	}
	return &req, nil
}

func mongoListFilter(filter models.ClearanceFilter) bson.M {
	query := bson.M{}
	if filter.Status != nil {
		query["overallStatus"] = *filter.Status
	}
	if filter.StudentID != "" {
		query["studentId"] = filter.StudentID
	}
	if filter.DepartmentKey != "" {
		path := "departmentStatuses." + filter.DepartmentKey
		if filter.DepartmentStatus != nil {
			query[path+".status"] = *filter.DepartmentStatus
		} else {
			query[path] = bson.M{"$exists": true}
		}
	}
	if filter.CreatedBefore != nil {
		query["createdAt"] = bson.M{"$lte": filter.CreatedBefore.UTC()}
	}
	return query
}

func mongoDepartmentUpdate(params UpdateDepartmentParams) (bson.M, bson.M) {
	path := "departmentStatuses." + params.DepartmentKey
	updatedAt := params.UpdatedAt.UTC()
	set := bson.M{
		path + ".status":    params.Status,
		path + ".updatedBy": params.ActorID,
		path + ".updatedAt": updatedAt,
		"updatedAt":         updatedAt,
	}
	if params.Remarks != nil {
		set[path+".remarks"] = *params.Remarks
	}
	filter := bson.M{"_id": params.RequestID, path: bson.M{"$exists": true}}
	update := bson.M{"$set": set, "$inc": bson.M{"version": 1}}
	return filter, update
}

package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/noah-isme/nodues-api/internal/models"
)

func TestMongoDepartmentUpdateTouchesSingleKey(t *testing.T) {
	now := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	filter, update := mongoDepartmentUpdate(UpdateDepartmentParams{
		RequestID:     "req-1",
		DepartmentKey: "library",
		Status:        models.ClearanceStatusApproved,
		ActorID:       "fac-1",
		UpdatedAt:     now,
	})

	require.Equal(t, "req-1", filter["_id"])
	require.Equal(t, bson.M{"$exists": true}, filter["departmentStatuses.library"])

	set := update["$set"].(bson.M)
	require.Equal(t, models.ClearanceStatusApproved, set["departmentStatuses.library.status"])
	require.Equal(t, "fac-1", set["departmentStatuses.library.updatedBy"])
	require.NotContains(t, set, "departmentStatuses.library.remarks")
	for key := range set {
		require.NotContains(t, key, "hostel")
	}
	require.Equal(t, bson.M{"version": 1}, update["$inc"])

	remarks := "dues cleared"
	_, update = mongoDepartmentUpdate(UpdateDepartmentParams{
		RequestID: "req-1", DepartmentKey: "library", Status: models.ClearanceStatusRejected, Remarks: &remarks, UpdatedAt: now,
	})
	require.Equal(t, "dues cleared", update["$set"].(bson.M)["departmentStatuses.library.remarks"])
}

func TestMongoListFilter(t *testing.T) {
	pending := models.ClearanceStatusPending
	before := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	query := mongoListFilter(models.ClearanceFilter{
		Status:           &pending,
		DepartmentKey:    "hostel",
		DepartmentStatus: &pending,
		CreatedBefore:    &before,
	})
	require.Equal(t, pending, query["overallStatus"])
	require.Equal(t, pending, query["departmentStatuses.hostel.status"])
	require.Equal(t, bson.M{"$lte": before}, query["createdAt"])

	query = mongoListFilter(models.ClearanceFilter{DepartmentKey: "hostel"})
	require.Equal(t, bson.M{"$exists": true}, query["departmentStatuses.hostel"])
	require.Len(t, query, 1)
}

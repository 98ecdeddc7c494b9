package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDepartmentStatusesScanValue(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	in := DepartmentStatuses{
		"library": {Status: ClearanceStatusApproved, Remarks: "ok", UpdatedBy: "fac-1", UpdatedAt: &ts},
		"hostel":  {Status: ClearanceStatusPending},
	}
	raw, err := in.Value()
	require.NoError(t, err)

	var out DepartmentStatuses
	require.NoError(t, out.Scan(raw))
	require.Equal(t, []string{"hostel", "library"}, out.Keys())
	require.Equal(t, "fac-1", out["library"].UpdatedBy)
	require.True(t, ts.Equal(*out["library"].UpdatedAt))
	require.Nil(t, out["hostel"].UpdatedAt)

	require.NoError(t, out.Scan(nil))
	require.Empty(t, out)
	require.Error(t, out.Scan(42))
}

func TestDepartmentStatusesCloneIsDeep(t *testing.T) {
	ts := time.Now()
	in := DepartmentStatuses{"library": {Status: ClearanceStatusPending, UpdatedAt: &ts}}
	out := in.Clone()
	*out["library"].UpdatedAt = ts.Add(time.Hour)
	require.True(t, in["library"].UpdatedAt.Equal(ts))
}

func TestClearanceFilterNormalize(t *testing.T) {
	f := ClearanceFilter{Page: 0, PageSize: 500}
	require.Equal(t, 0, f.Normalize())
	require.Equal(t, 1, f.Page)
	require.Equal(t, 100, f.PageSize)

	f = ClearanceFilter{Page: 3, PageSize: 10}
	require.Equal(t, 20, f.Normalize())
}

func TestClearanceStatusPredicates(t *testing.T) {
	require.True(t, ClearanceStatusPending.Valid())
	require.False(t, ClearanceStatus("DONE").Valid())
	require.True(t, ClearanceStatusRejected.IsDecision())
	require.False(t, ClearanceStatusPending.IsDecision())
}

func TestParseClearanceStatuses(t *testing.T) {
	statuses, err := ParseClearanceStatuses([]string{"PENDING", "APPROVED"})
	require.NoError(t, err)
	require.Equal(t, []ClearanceStatus{ClearanceStatusPending, ClearanceStatusApproved}, statuses)

	_, err = ParseClearanceStatuses([]string{"PENDING", "PENDNG"})
	require.ErrorContains(t, err, "PENDNG")

	statuses, err = ParseClearanceStatuses(nil)
	require.NoError(t, err)
	require.Empty(t, statuses)
}

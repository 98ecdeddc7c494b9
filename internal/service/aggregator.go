package service

import "github.com/noah-isme/nodues-api/internal/models"

// AggregateStatuses folds department decisions into an overall status. Any rejection wins, then any
// pending entry, otherwise every department approved. An empty set is approved.
func AggregateStatuses(statuses []models.ClearanceStatus) models.ClearanceStatus {
	pending := false
	for _, status := range statuses {
		switch status {
		case models.ClearanceStatusRejected:
			return models.ClearanceStatusRejected
		case models.ClearanceStatusApproved:
		default:
			pending = true
		}
	}
	if pending {
		return models.ClearanceStatusPending
	}
	return models.ClearanceStatusApproved
}

// AggregateOverallStatus derives the overall status of a request from its department map.
func AggregateOverallStatus(departments models.DepartmentStatuses) models.ClearanceStatus {
	statuses := make([]models.ClearanceStatus, 0, len(departments))
	for _, entry := range departments {
		statuses = append(statuses, entry.Status)
	}
	return AggregateStatuses(statuses)
}

// IsEligibleForCertificate reports whether every department approved the request and the stored overall
// status agrees.
func IsEligibleForCertificate(req *models.ClearanceRequest) bool {
	if req == nil {
		return false
	}
	return req.OverallStatus == models.ClearanceStatusApproved &&
		AggregateOverallStatus(req.DepartmentStatuses) == models.ClearanceStatusApproved
}

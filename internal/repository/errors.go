package repository

import "errors"

var (
	// ErrNotFound is returned when the addressed record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrUnknownDepartment is returned when a department key is not part of a clearance document.
	ErrUnknownDepartment = errors.New("department key not present on request")
	// ErrVersionConflict is returned by compare-and-set writes that lost a race.
	ErrVersionConflict = errors.New("version conflict")
	// ErrDuplicateActive is returned when a student already owns a pending request.
	ErrDuplicateActive = errors.New("student already has a pending request")
)

package models

import "time"

// Student is a learner who can raise clearance requests.
type Student struct {
	ID           string    `db:"id" json:"id"`
	UserID       *string   `db:"user_id" json:"userId,omitempty"`
	RollNumber   string    `db:"roll_number" json:"rollNumber"`
	FullName     string    `db:"full_name" json:"fullName"`
	Email        string    `db:"email" json:"email"`
	DepartmentID string    `db:"department_id" json:"departmentId"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

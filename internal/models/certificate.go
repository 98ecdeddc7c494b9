package models

import "time"

// Certificate records a no-dues certificate issued for an approved request.
type Certificate struct {
	ID        string    `db:"id" json:"id"`
	RequestID string    `db:"request_id" json:"requestId"`
	StudentID string    `db:"student_id" json:"studentId"`
	Number    string    `db:"number" json:"number"`
	FilePath  string    `db:"file_path" json:"-"`
	IssuedBy  string    `db:"issued_by" json:"issuedBy"`
	IssuedAt  time.Time `db:"issued_at" json:"issuedAt"`
}

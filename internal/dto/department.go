package dto

// UpsertDepartmentRequest creates or updates a registry entry.
type UpsertDepartmentRequest struct {
	Name        string `json:"name" validate:"required,max=120"`
	Description string `json:"description" validate:"max=500"`
	Active      *bool  `json:"active"`
	SortOrder   int    `json:"sortOrder" validate:"gte=0"`
}

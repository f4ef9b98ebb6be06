package storage

// PaginatedResult represents a paginated result set with type safety using
// generics.
type PaginatedResult[T any] struct {
	// Items is the slice of results for the current page.
	Items []T

	// Total is the total number of items across all pages.
	Total int

	// Page is the current page number (1-indexed).
	Page int

	// PageSize is the number of items per page.
	PageSize int

	// HasMore indicates whether there are more pages available.
	HasMore bool
}

// ListOptions provides pagination and filtering options for list operations.
type ListOptions struct {
	// Page is the page number to retrieve (1-indexed, default: 1).
	Page int

	// Limit is the number of items per page (default: 50, max: 500).
	Limit int

	// Project filters to a single project. Empty enumerates all projects.
	Project string

	// Category filters by category. Empty means no filter.
	Category string

	// Status filters by record status. Empty means no filter.
	Status string

	// Priority filters by priority. Empty means no filter.
	Priority string

	// Tag filters to records carrying the given tag. Empty means no filter.
	Tag string

	// ParentTask filters tasks to children of the given id (tasks only).
	ParentTask string
}

// Normalize applies defaults and clamps the ListOptions.
func (o *ListOptions) Normalize() {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.Limit < 1 {
		o.Limit = 50
	}
	if o.Limit > 500 {
		o.Limit = 500
	}
}

// Offset calculates the slice offset for the current page.
func (o *ListOptions) Offset() int {
	return (o.Page - 1) * o.Limit
}

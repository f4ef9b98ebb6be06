package filestore

import "github.com/dmehra/cairn/internal/storage"

// paginate slices a filtered, sorted result set into the requested page.
func paginate[T any](items []T, opts storage.ListOptions) *storage.PaginatedResult[T] {
	total := len(items)
	start := opts.Offset()
	if start > total {
		start = total
	}
	end := start + opts.Limit
	if end > total {
		end = total
	}
	return &storage.PaginatedResult[T]{
		Items:    items[start:end],
		Total:    total,
		Page:     opts.Page,
		PageSize: opts.Limit,
		HasMore:  end < total,
	}
}

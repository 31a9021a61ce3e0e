package pagination

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Normalize clamps page to >= 1 and pageSize to [1, MaxPageSize].
func Normalize(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}

// Offset returns the row offset of page.
func Offset(page, pageSize int) int {
	return (page - 1) * pageSize
}

func TotalPages(total int64, pageSize int) int {
	if pageSize < 1 {
		return 0
	}
	pages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		pages++
	}
	return pages
}

package shared

// Pagination contains metadata for offset paginated listings.
type Pagination struct {
	Limit      int  `json:"limit"`
	Offset     int  `json:"offset"`
	Total      int  `json:"total"`
	Page       int  `json:"page"`
	TotalPages int  `json:"totalPages"`
	HasMore    bool `json:"hasMore"`
	// NextOffset is zero on the last page.
	NextOffset int `json:"nextOffset,omitempty"`
}

// NewPagination computes pagination metadata for a limit/offset window.
func NewPagination(limit, offset, total int) Pagination {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	p := Pagination{
		Limit:      limit,
		Offset:     offset,
		Total:      total,
		Page:       offset/limit + 1,
		TotalPages: (total + limit - 1) / limit,
	}
	if next := offset + limit; next < total {
		p.HasMore = true
		p.NextOffset = next
	}
	return p
}

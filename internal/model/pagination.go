package model

// Paginated is the listing shape shared by every site. Next and Previous can
// point outside the valid range; check HasNextPage.
type Paginated[T any] struct {
	Page        int  `json:"page" validate:"gte=1"`
	Total       int  `json:"total" validate:"gte=0"`
	Pages       int  `json:"pages" validate:"gte=0"`
	Next        int  `json:"next"`
	Previous    int  `json:"previous"`
	HasNextPage bool `json:"hasNextPage"`
	Results     []T  `json:"results" validate:"dive"`
}

// Empty reports a page without results; such pages are not cached.
func (p Paginated[T]) Empty() bool {
	return len(p.Results) == 0
}

// PageInfo holds the numeric pagination fields before results are attached.
type PageInfo struct {
	Page        int
	Total       int
	Pages       int
	Next        int
	Previous    int
	HasNextPage bool
}

// WithResults attaches a page of results.
func WithResults[T any](info PageInfo, results []T) Paginated[T] {
	if results == nil {
		results = []T{}
	}
	return Paginated[T]{
		Page:        info.Page,
		Total:       info.Total,
		Pages:       info.Pages,
		Next:        info.Next,
		Previous:    info.Previous,
		HasNextPage: info.HasNextPage,
		Results:     results,
	}
}

// PageByHits computes pagination from an authoritative hit count.
// Next and Previous are page numbers.
func PageByHits(page, perPage, total int) PageInfo {
	page, perPage = normalize(page, perPage)
	if total < 0 {
		total = 0
	}
	pages := (total + perPage - 1) / perPage

	return PageInfo{
		Page:        page,
		Total:       total,
		Pages:       pages,
		Next:        page + 1,
		Previous:    page - 1,
		HasNextPage: page < pages,
	}
}

// PageByOffset computes pagination when the upstream only exposes the offset
// of its last page link. Next and Previous are the upstream offsets of the
// neighbouring pages, so Previous is Offset(page-1). Next is 0 when
// HasNextPage is false. Previous is 0 on page 1 and on page 2, whose previous
// page starts at offset 0; check Page > 1 before following it.
func PageByOffset(page, perPage, lastOffset int) PageInfo {
	page, perPage = normalize(page, perPage)
	if lastOffset < 0 {
		lastOffset = 0
	}
	pages := lastOffset/perPage + 1
	if page > pages {
		// The last link is missing on the final page itself.
		pages = page
	}

	info := PageInfo{
		Page:        page,
		Total:       pages * perPage,
		Pages:       pages,
		HasNextPage: page < pages,
	}
	if info.HasNextPage {
		info.Next = page * perPage
	}
	if page > 1 {
		info.Previous = (page - 2) * perPage
	}
	return info
}

// Offset is the zero-based index of the first item on page.
func Offset(page, perPage int) int {
	page, perPage = normalize(page, perPage)
	return (page - 1) * perPage
}

func normalize(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 1
	}
	return page, perPage
}

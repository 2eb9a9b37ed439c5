package utils

import "strconv"

// Pagination limits
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 200
)

// ParsePagination reads page and limit query values, falling back to defaults for
// missing or invalid input
func ParsePagination(pageStr, limitStr string) (int, int) {
	page, err := strconv.Atoi(pageStr)
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return page, limit
}

// Package utils holds small transport-agnostic helpers.
package utils

import "strconv"

const (
	defaultPage     = 1
	defaultPageSize = 20
	maxPageSize     = 100
)

// ParsePagination normalizes raw page/page_size query values. Invalid or
// missing values fall back to defaults; page_size is capped.
func ParsePagination(rawPage, rawSize string) (page, pageSize int) {
	page = defaultPage
	if v, err := strconv.Atoi(rawPage); err == nil && v > 0 {
		page = v
	}
	pageSize = defaultPageSize
	if v, err := strconv.Atoi(rawSize); err == nil && v > 0 {
		pageSize = v
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

// PageMeta is the pagination envelope attached to list responses.
type PageMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Total    int64 `json:"total"`
}

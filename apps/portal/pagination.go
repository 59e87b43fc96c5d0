package main

import (
	"strconv"
	"strings"
)

const (
	defaultPage    = 1
	defaultPerPage = 50
)

type paginationViewData struct {
	CurrentPage   int
	NextPage      int
	PrevPage      int
	HasNext       bool
	HasPrev       bool
	PageURL       string
	PageSeparator string
}

func parsePage(rawPage string) int {
	page, err := strconv.Atoi(strings.TrimSpace(rawPage))
	if err != nil || page < defaultPage {
		return defaultPage
	}
	return page
}

func pageOffset(page, pageSize int) int {
	if page < defaultPage {
		page = defaultPage
	}
	return (page - 1) * pageSize
}

// buildPaginationView pages over a backend that reports no total. hasNext
// comes from fetching one row more than a page.
func buildPaginationView(currentPage int, hasNext bool, pageURL string) paginationViewData {
	if currentPage < defaultPage {
		currentPage = defaultPage
	}

	pageSeparator := "?"
	if strings.Contains(pageURL, "?") {
		pageSeparator = "&"
	}

	return paginationViewData{
		CurrentPage:   currentPage,
		NextPage:      currentPage + 1,
		PrevPage:      currentPage - 1,
		HasNext:       hasNext,
		HasPrev:       currentPage > defaultPage,
		PageURL:       pageURL,
		PageSeparator: pageSeparator,
	}
}

package main

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"grievance/libs/backend"

	"github.com/gin-gonic/gin"
)

type heatmapRow struct {
	Place              string
	ComplaintCount     int
	ResolvedCount      int
	AvgResolutionHours string
	TopCategory        string
	Sentiment          string
}

type departmentStatsRow struct {
	Name               string
	TotalComplaints    int
	ResolvedCount      int
	ResolutionRate     string
	AvgResolutionHours string
}

type adminHeatmapViewData struct {
	baseViewData
	State         string
	City          string
	Days          int
	States        []string
	Rows          []heatmapRow
	TopCategories []backend.CategoryCount
	Departments   []departmentStatsRow
	Summary       backend.HeatmapSummary
	DateFrom      string
	DateTo        string
	Loaded        bool
}

type labeledValue struct {
	Label string
	Value string
}

type departmentSentimentRow struct {
	Name             string
	AverageSentiment string
	FrustrationRate  string
	TotalComplaints  int
}

type adminSentimentViewData struct {
	baseViewData
	Days                 int
	Department           string
	State                string
	States               []string
	Loaded               bool
	AverageSentiment     string
	FrustrationRate      string
	HighPriorityEmotions int
	TotalComplaints      int
	Emotions             []departmentCount
	Trend                []labeledValue
	Departments          []departmentSentimentRow
	DateFrom             string
	DateTo               string
}

func (a *App) heatmapFilter(c *gin.Context) backend.HeatmapFilter {
	state := strings.TrimSpace(c.Query("state"))
	if canonical := canonicalStateName(state); canonical != "" {
		state = canonical
	}
	return backend.HeatmapFilter{
		State: state,
		City:  strings.TrimSpace(c.Query("city")),
		Days:  parseDays(c.Query("days")),
	}
}

func (a *App) adminHeatmapPageHandler(c *gin.Context) {
	lang := a.languageFromRequest(c)
	filter := a.heatmapFilter(c)
	data := adminHeatmapViewData{
		baseViewData: a.baseData(c, "page_title_heatmap", "heatmap"),
		State:        filter.State,
		City:         filter.City,
		Days:         filter.Days,
		States:       indianStateNames(),
	}

	heatmap, err := a.backend.HeatmapData(c.Request.Context(), filter)
	if err != nil {
		data.ErrorMessage = backendErrorMessage(err, lang, "error_insights_load_failed")
		a.renderTemplate(c, statusForBackendError(err), templateAdminHeatmapPath, data)
		return
	}

	data.Loaded = true
	data.Summary = heatmap.Summary
	data.TopCategories = heatmap.TopCategories
	data.DateFrom = a.formatTimestamp(heatmap.DateRange.From)
	data.DateTo = a.formatTimestamp(heatmap.DateRange.To)
	data.Rows = buildHeatmapRows(lang, heatmap.Locations)
	data.Departments = buildDepartmentStatsRows(heatmap.DepartmentStats)
	a.renderTemplate(c, http.StatusOK, templateAdminHeatmapPath, data)
}

func (a *App) adminHeatmapJSONHandler(c *gin.Context) {
	lang := a.languageFromRequest(c)
	heatmap, err := a.backend.HeatmapData(c.Request.Context(), a.heatmapFilter(c))
	if err != nil {
		writeAPIError(c, backendAPIError(err, lang))
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": heatmap, "date_range": heatmap.DateRange})
}

func buildHeatmapRows(lang string, locations []backend.HeatmapLocation) []heatmapRow {
	sorted := append([]backend.HeatmapLocation{}, locations...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ComplaintCount > sorted[j].ComplaintCount
	})

	rows := make([]heatmapRow, 0, len(sorted))
	for _, location := range sorted {
		place := formatLocation(backend.Location{
			City:     location.Location.City,
			District: location.Location.District,
			State:    location.Location.State,
			Pincode:  location.Location.Pincode,
		})
		avg := t(lang, "common_dash")
		if location.AvgResolutionHours != nil {
			avg = fmt.Sprintf("%.1f", *location.AvgResolutionHours)
		}
		rows = append(rows, heatmapRow{
			Place:              place,
			ComplaintCount:     location.ComplaintCount,
			ResolvedCount:      location.ResolvedCount,
			AvgResolutionHours: avg,
			TopCategory:        topKey(location.Categories),
			Sentiment:          fmt.Sprintf("%.2f", location.SentimentAvg),
		})
	}
	return rows
}

func buildDepartmentStatsRows(stats map[string]backend.DepartmentStats) []departmentStatsRow {
	rows := make([]departmentStatsRow, 0, len(stats))
	for name, stat := range stats {
		rows = append(rows, departmentStatsRow{
			Name:               name,
			TotalComplaints:    stat.TotalComplaints,
			ResolvedCount:      stat.ResolvedCount,
			ResolutionRate:     fmt.Sprintf("%.0f%%", stat.ResolutionRate*100),
			AvgResolutionHours: fmt.Sprintf("%.1f", stat.AvgResolutionHours),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].TotalComplaints == rows[j].TotalComplaints {
			return rows[i].Name < rows[j].Name
		}
		return rows[i].TotalComplaints > rows[j].TotalComplaints
	})
	return rows
}

// topKey returns the key with the highest count, ties broken alphabetically.
func topKey(counts map[string]int) string {
	best := ""
	bestCount := -1
	for key, count := range counts {
		if count > bestCount || (count == bestCount && key < best) {
			best, bestCount = key, count
		}
	}
	if best == "" {
		return "-"
	}
	return best
}

func (a *App) adminSentimentPageHandler(c *gin.Context) {
	lang := a.languageFromRequest(c)
	filter := backend.SentimentFilter{
		Days:       parseDays(c.Query("days")),
		Department: strings.TrimSpace(c.Query("department")),
		State:      strings.TrimSpace(c.Query("state")),
	}
	if canonical := canonicalStateName(filter.State); canonical != "" {
		filter.State = canonical
	}

	data := adminSentimentViewData{
		baseViewData: a.baseData(c, "page_title_sentiment", "sentiment"),
		Days:         filter.Days,
		Department:   filter.Department,
		State:        filter.State,
		States:       indianStateNames(),
	}

	metrics, err := a.backend.SentimentMetrics(c.Request.Context(), filter)
	if err != nil {
		data.ErrorMessage = backendErrorMessage(err, lang, "error_insights_load_failed")
		a.renderTemplate(c, statusForBackendError(err), templateAdminSentimentPath, data)
		return
	}

	data.Loaded = true
	data.AverageSentiment = fmt.Sprintf("%.2f", metrics.AverageSentiment)
	data.FrustrationRate = fmt.Sprintf("%.1f%%", metrics.FrustrationRate*100)
	data.HighPriorityEmotions = metrics.HighPriorityEmotions
	data.TotalComplaints = metrics.TotalComplaints
	data.Emotions = sortedDepartmentCounts(metrics.EmotionDistribution)
	data.DateFrom = a.formatTimestamp(metrics.DateRange.From)
	data.DateTo = a.formatTimestamp(metrics.DateRange.To)
	for _, point := range metrics.SatisfactionTrend {
		data.Trend = append(data.Trend, labeledValue{
			Label: point.Date,
			Value: fmt.Sprintf("%.2f (%d)", point.AverageSentiment, point.ComplaintCount),
		})
	}

	departments := make([]string, 0, len(metrics.DepartmentsBySentiment))
	for name := range metrics.DepartmentsBySentiment {
		departments = append(departments, name)
	}
	// Most negative first.
	sort.Slice(departments, func(i, j int) bool {
		left := metrics.DepartmentsBySentiment[departments[i]].AverageSentiment
		right := metrics.DepartmentsBySentiment[departments[j]].AverageSentiment
		if left == right {
			return departments[i] < departments[j]
		}
		return left < right
	})
	for _, name := range departments {
		stats := metrics.DepartmentsBySentiment[name]
		data.Departments = append(data.Departments, departmentSentimentRow{
			Name:             name,
			AverageSentiment: fmt.Sprintf("%.2f", stats.AverageSentiment),
			FrustrationRate:  fmt.Sprintf("%.1f%%", stats.FrustrationRate*100),
			TotalComplaints:  stats.TotalComplaints,
		})
	}

	a.renderTemplate(c, http.StatusOK, templateAdminSentimentPath, data)
}

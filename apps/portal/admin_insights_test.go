package main

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"grievance/libs/backend"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const heatmapReply = `{
	"data": {
		"locations": [
			{
				"location": {"city": "Nagpur", "district": "Nagpur", "state": "Maharashtra", "pincode": "440001"},
				"complaint_count": 2,
				"categories": {"water": 2},
				"resolved_count": 0,
				"sentiment_avg": -0.25
			},
			{
				"location": {"city": "Hinjewadi", "district": "Pune", "state": "Maharashtra", "pincode": "411057"},
				"complaint_count": 9,
				"categories": {"roads": 5, "lighting": 5, "water": 1},
				"avg_resolution_hours": 36.25,
				"resolved_count": 4,
				"sentiment_avg": -0.5
			}
		],
		"top_categories": [{"category": "roads", "count": 5}],
		"department_stats": {
			"Public Works Department": {"avg_resolution_hours": 40, "total_complaints": 6, "resolved_count": 3, "resolution_rate": 0.5},
			"Water Supply": {"avg_resolution_hours": 12.5, "total_complaints": 5, "resolved_count": 1, "resolution_rate": 0.2}
		},
		"summary": {"total_locations": 2, "total_complaints": 11, "total_categories": 3, "total_departments": 2}
	},
	"date_range": {"from": "2025-02-01T00:00:00", "to": "2025-03-01T00:00:00"}
}`

func TestTopKeyBreaksTiesAlphabetically(t *testing.T) {
	assert.Equal(t, "lighting", topKey(map[string]int{"roads": 5, "lighting": 5, "water": 1}))
	assert.Equal(t, "water", topKey(map[string]int{"water": 3}))
	assert.Equal(t, "-", topKey(nil))
}

func TestBuildHeatmapRowsSortsByComplaintCount(t *testing.T) {
	avg := 36.25
	rows := buildHeatmapRows("en", []backend.HeatmapLocation{
		{Location: backend.HeatmapPlace{City: "Nagpur", State: "Maharashtra"}, ComplaintCount: 2},
		{Location: backend.HeatmapPlace{City: "Hinjewadi", District: "Pune"}, ComplaintCount: 9, AvgResolutionHours: &avg, SentimentAvg: -0.5},
	})

	require.Len(t, rows, 2)
	assert.Equal(t, "Hinjewadi, Pune", rows[0].Place)
	assert.Equal(t, "36.2", rows[0].AvgResolutionHours)
	assert.Equal(t, "-0.50", rows[0].Sentiment)
	assert.Equal(t, "Nagpur, Maharashtra", rows[1].Place)
	assert.Equal(t, mustText(t, "en", "common_dash"), rows[1].AvgResolutionHours)
	assert.Equal(t, "-", rows[1].TopCategory)
}

func TestBuildDepartmentStatsRowsOrdersByVolume(t *testing.T) {
	rows := buildDepartmentStatsRows(map[string]backend.DepartmentStats{
		"Water Supply": {TotalComplaints: 5, ResolutionRate: 0.2, AvgResolutionHours: 12.5},
		"Electricity":  {TotalComplaints: 5, ResolutionRate: 1},
		"Roads":        {TotalComplaints: 8, ResolutionRate: 0.375},
	})

	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Roads", "Electricity", "Water Supply"}, []string{rows[0].Name, rows[1].Name, rows[2].Name})
	assert.Equal(t, "38%", rows[0].ResolutionRate)
	assert.Equal(t, "100%", rows[1].ResolutionRate)
	assert.Equal(t, "12.5", rows[2].AvgResolutionHours)
}

func TestHeatmapPageCanonicalizesStateAndRendersRows(t *testing.T) {
	app, router, fake := newPortalTestServer(t)
	fake.reply(http.MethodGet, "/api/heatmap/data", http.StatusOK, heatmapReply)

	res := serve(router, adminRequest(t, app, http.MethodGet, "/admin/heatmap?state=maharashtra&city=+Pune+&days=900", nil))
	require.Equal(t, http.StatusOK, res.Code)

	calls := fake.callsTo(http.MethodGet, "/api/heatmap/data")
	require.Len(t, calls, 1)
	assert.Equal(t, "Maharashtra", calls[0].Query.Get("state"))
	assert.Equal(t, "Pune", calls[0].Query.Get("city"))
	assert.Equal(t, "365", calls[0].Query.Get("days"))

	body := res.Body.String()
	hinjewadi := strings.Index(body, "Hinjewadi, Pune, Maharashtra, 411057")
	nagpur := strings.Index(body, "Nagpur, Nagpur, Maharashtra, 440001")
	require.NotEqual(t, -1, hinjewadi)
	require.NotEqual(t, -1, nagpur)
	assert.Less(t, hinjewadi, nagpur, "busiest place first")
	assert.Contains(t, body, "lighting")
	assert.Contains(t, body, "50%")
}

func TestHeatmapPageShowsBackendFailure(t *testing.T) {
	app, router, fake := newPortalTestServer(t)
	fake.reply(http.MethodGet, "/api/heatmap/data", http.StatusBadRequest, `{"detail":"Unknown state"}`)

	res := serve(router, adminRequest(t, app, http.MethodGet, "/admin/heatmap", nil))

	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), "Unknown state")
}

func TestHeatmapJSONPassesDataThrough(t *testing.T) {
	app, router, fake := newPortalTestServer(t)
	fake.reply(http.MethodGet, "/api/heatmap/data", http.StatusOK, heatmapReply)

	res := serve(router, adminRequest(t, app, http.MethodGet, "/admin/heatmap.json", nil))
	require.Equal(t, http.StatusOK, res.Code)

	var body struct {
		Data      backend.Heatmap   `json:"data"`
		DateRange backend.DateRange `json:"date_range"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	assert.Len(t, body.Data.Locations, 2)
	assert.Equal(t, 11, body.Data.Summary.TotalComplaints)
	assert.Equal(t, "2025-02-01T00:00:00", body.DateRange.From)
	assert.Equal(t, "30", fake.callsTo(http.MethodGet, "/api/heatmap/data")[0].Query.Get("days"))
}

func TestHeatmapJSONReportsBackendError(t *testing.T) {
	app, router, fake := newPortalTestServer(t)
	fake.reply(http.MethodGet, "/api/heatmap/data", http.StatusBadRequest, `{"detail":"Unknown state"}`)

	res := serve(router, adminRequest(t, app, http.MethodGet, "/admin/heatmap.json?state=atlantis", nil))
	require.Equal(t, http.StatusBadRequest, res.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	assert.Equal(t, "Unknown state", body["message"])
	assert.Equal(t, "atlantis", fake.callsTo(http.MethodGet, "/api/heatmap/data")[0].Query.Get("state"))
}

func TestSentimentPageListsMostNegativeDepartmentFirst(t *testing.T) {
	app, router, fake := newPortalTestServer(t)
	fake.reply(http.MethodGet, "/api/sentiment/metrics", http.StatusOK, `{
		"metrics": {
			"average_sentiment": -0.12,
			"emotion_distribution": {"anger": 4, "hope": 2},
			"frustration_rate": 0.35,
			"satisfaction_trend": [{"date": "2025-02-28", "average_sentiment": -0.2, "complaint_count": 3}],
			"high_priority_emotions": 4,
			"departments_by_sentiment": {
				"Health Services": {"average_sentiment": 0.1, "frustration_rate": 0.05, "total_complaints": 2},
				"Road Transport": {"average_sentiment": -0.6, "frustration_rate": 0.5, "total_complaints": 6},
				"Water Board": {"average_sentiment": -0.2, "frustration_rate": 0.25, "total_complaints": 4}
			}
		},
		"total_complaints": 12,
		"date_range": {"from": "2025-02-01T00:00:00", "to": "2025-03-01T00:00:00"}
	}`)

	res := serve(router, adminRequest(t, app, http.MethodGet, "/admin/sentiment?days=7&state=orissa", nil))
	require.Equal(t, http.StatusOK, res.Code)

	calls := fake.callsTo(http.MethodGet, "/api/sentiment/metrics")
	require.Len(t, calls, 1)
	assert.Equal(t, "7", calls[0].Query.Get("days"))
	assert.Equal(t, "Odisha", calls[0].Query.Get("state"))
	assert.Empty(t, calls[0].Query.Get("department"))

	body := res.Body.String()
	road := strings.Index(body, "Road Transport")
	water := strings.Index(body, "Water Board")
	health := strings.Index(body, "Health Services")
	require.True(t, road >= 0 && water >= 0 && health >= 0, "every department is listed")
	assert.Less(t, road, water)
	assert.Less(t, water, health)
	assert.Contains(t, body, "35.0%")
	assert.Contains(t, body, "-0.20 (3)")
}

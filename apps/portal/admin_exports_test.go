package main

import (
	"bytes"
	"encoding/csv"
	"net/http"
	"testing"

	"grievance/libs/backend"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exportFixture() []backend.Complaint {
	return []backend.Complaint{
		{
			ID:                "CMP-1",
			Status:            "open",
			Urgency:           "high",
			CurrentDepartment: "Water Supply",
			Description:       "No water, since \"Monday\"",
			CitizenName:       "Asha",
			Location:          backend.Location{State: "Maharashtra", City: "Nashik", Pincode: "422001"},
			UpvoteCount:       7,
			CreatedAt:         "2025-03-01T04:30:00",
		},
		{
			ID:                    "CMP-2",
			Status:                "resolved",
			ResponsibleDepartment: "Roads",
			CreatedAt:             "2025-03-02T04:30:00",
		},
	}
}

func TestBuildComplaintsCSV(t *testing.T) {
	body, err := buildComplaintsCSV(exportFixture())
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(body)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "id", records[0][0])
	assert.Equal(t, "description", records[0][len(records[0])-1])
	assert.Equal(t, []string{"CMP-1", "open", "high", "Water Supply"}, records[1][:4])
	assert.Equal(t, "No water, since \"Monday\"", records[1][len(records[1])-1])
	assert.Equal(t, "7", records[1][12])
	assert.Equal(t, "Roads", records[2][3])
}

func TestBuildComplaintsPDF(t *testing.T) {
	body, err := buildComplaintsPDF(exportFixture(), adminFilters{Status: "open"}, "01 Mar 2025 10:00 IST")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(body, []byte("%PDF")))
}

func TestAdminExportCSVNewestFirst(t *testing.T) {
	app, router, fake := newPortalTestServer(t)
	fake.reply(http.MethodGet, "/api/admin/complaints", http.StatusOK, `{"success":true,"complaints":[
		{"id":"CMP-OLD","status":"open","created_at":"2025-03-01T04:30:00"},
		{"id":"CMP-NEW","status":"open","created_at":"2025-03-05T04:30:00"}
	]}`)

	res := serve(router, adminRequest(t, app, http.MethodGet, "/admin/export.csv?status=open", nil))

	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "text/csv; charset=utf-8", res.Header().Get("Content-Type"))
	assert.Contains(t, res.Header().Get("Content-Disposition"), "attachment; filename=\"complaints-")
	records, err := csv.NewReader(res.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "CMP-NEW", records[1][0])

	calls := fake.callsTo(http.MethodGet, "/api/admin/complaints")
	require.Len(t, calls, 1)
	assert.Equal(t, "500", calls[0].Query.Get("limit"))
	assert.Equal(t, "open", calls[0].Query.Get("status"))
}

func TestAdminExportPDFFailureRedirects(t *testing.T) {
	app, router, _ := newPortalTestServer(t)

	res := serve(router, adminRequest(t, app, http.MethodGet, "/admin/export.pdf?department=Roads", nil))

	require.Equal(t, http.StatusSeeOther, res.Code)
	assert.Contains(t, res.Header().Get("Location"), "/admin?")
	assert.Contains(t, res.Header().Get("Location"), "department=Roads")
}

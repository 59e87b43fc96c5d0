package backend

// Complaint statuses accepted by the admin status endpoint.
const (
	StatusOpen       = "open"
	StatusInProgress = "in_progress"
	StatusResolved   = "resolved"
	StatusEscalated  = "escalated"
	StatusClosed     = "closed"
)

// Statuses lists every complaint status in display order.
var Statuses = []string{StatusOpen, StatusInProgress, StatusEscalated, StatusResolved, StatusClosed}

// Urgencies lists every urgency label from lowest to highest.
var Urgencies = []string{"low", "medium", "high", "urgent"}

// EscalationNone is the escalation level of a complaint that was never escalated.
const EscalationNone = "none"

// IsValidStatus reports whether status is one of Statuses.
func IsValidStatus(status string) bool {
	for _, candidate := range Statuses {
		if candidate == status {
			return true
		}
	}
	return false
}

// Location is the structured address of a complaint.
type Location struct {
	Country  string `json:"country"`
	State    string `json:"state,omitempty"`
	District string `json:"district,omitempty"`
	City     string `json:"city,omitempty"`
	Pincode  string `json:"pincode,omitempty"`
	Address  string `json:"address,omitempty"`
}

// ComplaintCreate is the intake payload.
type ComplaintCreate struct {
	Description  string   `json:"description"`
	CitizenName  string   `json:"citizen_name"`
	CitizenEmail string   `json:"citizen_email"`
	CitizenPhone string   `json:"citizen_phone"`
	Location     Location `json:"location"`
}

// ComplaintReceipt is what the backend returns for a created complaint.
type ComplaintReceipt struct {
	ID                 string `json:"id"`
	Status             string `json:"status"`
	AssignedDepartment string `json:"assigned_department"`
	SLADeadline        string `json:"sla_deadline"`
	Urgency            string `json:"urgency"`
	CreatedAt          string `json:"created_at"`
}

// ComplaintStatus is the citizen-facing status view of a complaint.
type ComplaintStatus struct {
	ID                 string   `json:"id"`
	Status             string   `json:"status"`
	TimeRemainingHours *float64 `json:"time_remaining_hours"`
	EscalationLevel    string   `json:"escalation_level"`
	LastUpdate         string   `json:"last_update"`
	CurrentDepartment  string   `json:"current_department"`
	Description        string   `json:"description"`
	Urgency            string   `json:"urgency"`
}

// Complaint is a full complaint row as returned by admin and forum endpoints.
type Complaint struct {
	ID                     string   `json:"id"`
	Description            string   `json:"description"`
	CitizenName            string   `json:"citizen_name"`
	CitizenEmail           string   `json:"citizen_email"`
	CitizenPhone           string   `json:"citizen_phone"`
	Location               Location `json:"location"`
	Status                 string   `json:"status"`
	Urgency                string   `json:"urgency"`
	ResponsibleDepartment  string   `json:"responsible_department"`
	CurrentDepartment      string   `json:"current_department"`
	SLADeadline            string   `json:"sla_deadline"`
	EscalationLevel        string   `json:"escalation_level"`
	CreatedAt              string   `json:"created_at"`
	UpdatedAt              string   `json:"updated_at"`
	UpvoteCount            int      `json:"upvote_count"`
	ForumPostCount         int      `json:"forum_post_count"`
	CommunityPriorityBoost float64  `json:"community_priority_boost"`
	SentimentScore         *float64 `json:"sentiment_score"`
	EmotionLevel           string   `json:"emotion_level"`
}

// Department returns the current department, falling back to the responsible one.
func (c Complaint) Department() string {
	if c.CurrentDepartment != "" {
		return c.CurrentDepartment
	}
	return c.ResponsibleDepartment
}

// StatusCounts is the per-status breakdown of the dashboard metrics.
type StatusCounts struct {
	Open       int `json:"open"`
	InProgress int `json:"in_progress"`
	Resolved   int `json:"resolved"`
	Escalated  int `json:"escalated"`
}

// DashboardMetrics aggregates complaints for the admin dashboard.
type DashboardMetrics struct {
	TotalComplaints int            `json:"total_complaints"`
	ByStatus        StatusCounts   `json:"by_status"`
	SLABreaches     int            `json:"sla_breaches"`
	ByDepartment    map[string]int `json:"by_department"`
}

// ListFilter narrows the admin complaint list.
type ListFilter struct {
	Limit      int
	Offset     int
	Status     string
	Department string
}

// OperationResult is the loosely shaped result of the follow-up, monitoring and
// notification operations. Unknown fields are kept in Details.
type OperationResult struct {
	Message string
	Details map[string]any
}

// ChatQuery is one chatbot question.
type ChatQuery struct {
	Question     string
	ComplaintID  string
	CitizenEmail string
	Language     string
}

// ChatComplaintInfo is the optional complaint block in a chatbot reply.
type ChatComplaintInfo struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	Department    string `json:"department"`
	TimeRemaining string `json:"time_remaining"`
}

// ChatReply is the chatbot's structured answer.
type ChatReply struct {
	Response         string             `json:"response"`
	ComplaintInfo    *ChatComplaintInfo `json:"complaint_info"`
	SuggestedActions []string           `json:"suggested_actions"`
	Confidence       float64            `json:"confidence"`
}

// HeatmapFilter narrows heatmap data.
type HeatmapFilter struct {
	State string
	City  string
	Days  int
}

// HeatmapPlace identifies the place a heatmap group covers.
type HeatmapPlace struct {
	City     string `json:"city"`
	District string `json:"district"`
	State    string `json:"state"`
	Pincode  string `json:"pincode"`
}

// HeatmapLocation is one aggregated place on the heatmap.
type HeatmapLocation struct {
	Location            HeatmapPlace   `json:"location"`
	ComplaintCount      int            `json:"complaint_count"`
	Categories          map[string]int `json:"categories"`
	Departments         map[string]int `json:"departments"`
	AvgResolutionHours  *float64       `json:"avg_resolution_hours"`
	ResolvedCount       int            `json:"resolved_count"`
	SentimentAvg        float64        `json:"sentiment_avg"`
	EmotionDistribution map[string]int `json:"emotion_distribution"`
}

// CategoryCount is one entry of the top-categories list.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// DepartmentStats is the resolution summary of one department.
type DepartmentStats struct {
	AvgResolutionHours float64 `json:"avg_resolution_hours"`
	TotalComplaints    int     `json:"total_complaints"`
	ResolvedCount      int     `json:"resolved_count"`
	ResolutionRate     float64 `json:"resolution_rate"`
}

// DateRange is an ISO timestamp window.
type DateRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// HeatmapSummary counts what the heatmap covers.
type HeatmapSummary struct {
	TotalLocations   int `json:"total_locations"`
	TotalComplaints  int `json:"total_complaints"`
	TotalCategories  int `json:"total_categories"`
	TotalDepartments int `json:"total_departments"`
}

// Heatmap is the geographic aggregation of complaints.
type Heatmap struct {
	Locations       []HeatmapLocation          `json:"locations"`
	TopCategories   []CategoryCount            `json:"top_categories"`
	DepartmentStats map[string]DepartmentStats `json:"department_stats"`
	Summary         HeatmapSummary             `json:"summary"`
	DateRange       DateRange                  `json:"-"`
}

// SentimentFilter narrows sentiment metrics.
type SentimentFilter struct {
	Days       int
	Department string
	State      string
}

// SentimentPoint is one day of the satisfaction trend.
type SentimentPoint struct {
	Date             string  `json:"date"`
	AverageSentiment float64 `json:"average_sentiment"`
	ComplaintCount   int     `json:"complaint_count"`
}

// DepartmentSentiment is the sentiment summary of one department.
type DepartmentSentiment struct {
	AverageSentiment float64 `json:"average_sentiment"`
	FrustrationRate  float64 `json:"frustration_rate"`
	TotalComplaints  int     `json:"total_complaints"`
}

// SentimentMetrics summarizes citizen sentiment.
type SentimentMetrics struct {
	AverageSentiment       float64                        `json:"average_sentiment"`
	EmotionDistribution    map[string]int                 `json:"emotion_distribution"`
	FrustrationRate        float64                        `json:"frustration_rate"`
	SatisfactionTrend      []SentimentPoint               `json:"satisfaction_trend"`
	HighPriorityEmotions   int                            `json:"high_priority_emotions"`
	DepartmentsBySentiment map[string]DepartmentSentiment `json:"departments_by_sentiment"`
	TotalComplaints        int                            `json:"-"`
	DateRange              DateRange                      `json:"-"`
}

// ForumPost is one message in a complaint's discussion thread.
type ForumPost struct {
	ID          string   `json:"id"`
	ComplaintID string   `json:"complaint_id"`
	AuthorName  string   `json:"author_name"`
	AuthorEmail string   `json:"author_email"`
	Content     string   `json:"content"`
	ImageURLs   []string `json:"image_urls"`
	Upvotes     int      `json:"upvotes"`
	Downvotes   int      `json:"downvotes"`
	CreatedAt   string   `json:"created_at"`
}

// ForumThread aggregates the forum view of a complaint.
type ForumThread struct {
	ComplaintID            string      `json:"complaint_id"`
	UpvoteCount            int         `json:"upvote_count"`
	Posts                  []ForumPost `json:"posts"`
	PostCount              int         `json:"post_count"`
	SimilarComplaints      []Complaint `json:"similar_complaints"`
	CommunityPriorityBoost float64     `json:"community_priority_boost"`
}

// ForumPostCreate is the payload of a new forum post. ImageURLs must already
// point at uploaded objects.
type ForumPostCreate struct {
	ComplaintID string
	AuthorName  string
	AuthorEmail string
	Content     string
	ImageURLs   []string
}

// Vote types.
const (
	VoteUp   = "upvote"
	VoteDown = "downvote"
)

// VoteRequest toggles one vote.
type VoteRequest struct {
	ComplaintID string
	VoterEmail  string
	VoteType    string
}

// VoteResult reports whether the vote was added or removed.
type VoteResult struct {
	Action                 string  `json:"action"`
	VoteType               string  `json:"vote_type"`
	UpvoteCount            int     `json:"upvote_count"`
	CommunityPriorityBoost float64 `json:"community_priority_boost"`
}

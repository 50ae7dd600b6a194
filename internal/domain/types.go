package domain

// Priority of a notification. Ordered LOW < MEDIUM < HIGH < CRITICAL.
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

var priorityRanks = map[Priority]int{
	PriorityLow:      1,
	PriorityMedium:   2,
	PriorityHigh:     3,
	PriorityCritical: 4,
}

// Rank returns the ordinal of p; unknown priorities rank 0
func (p Priority) Rank() int {
	return priorityRanks[p]
}

// Valid reports whether p is a known priority
func (p Priority) Valid() bool {
	return p.Rank() > 0
}

// Below reports whether p ranks strictly lower than min
func (p Priority) Below(min Priority) bool {
	return p.Rank() < min.Rank()
}

// Category groups notification types for preference management
type Category string

const (
	CategoryHRActivities   Category = "HR_ACTIVITIES"
	CategorySecurityAlerts Category = "SECURITY_ALERTS"
	CategorySystemUpdates  Category = "SYSTEM_UPDATES"
	CategoryCollaboration  Category = "COLLABORATION"
	CategoryAIInsights     Category = "AI_INSIGHTS"
	CategoryReports        Category = "REPORTS"
	CategoryReminders      Category = "REMINDERS"
)

// AllCategories lists every category
var AllCategories = []Category{
	CategoryHRActivities,
	CategorySecurityAlerts,
	CategorySystemUpdates,
	CategoryCollaboration,
	CategoryAIInsights,
	CategoryReports,
	CategoryReminders,
}

// Valid reports whether c is a known category
func (c Category) Valid() bool {
	for _, known := range AllCategories {
		if c == known {
			return true
		}
	}
	return false
}

// NotificationType identifies the domain event behind a notification
type NotificationType string

const (
	TypeCandidateApplied       NotificationType = "CANDIDATE_APPLIED"
	TypeCandidateStatusChanged NotificationType = "CANDIDATE_STATUS_CHANGED"
	TypeInterviewScheduled     NotificationType = "INTERVIEW_SCHEDULED"
	TypeInterviewReminder      NotificationType = "INTERVIEW_REMINDER"
	TypeJobPosted              NotificationType = "JOB_POSTED"
	TypeJobClosed              NotificationType = "JOB_CLOSED"
	TypeJobExpiring            NotificationType = "JOB_EXPIRING"
	TypeCommentPosted          NotificationType = "COMMENT_POSTED"
	TypeCommentReply           NotificationType = "COMMENT_REPLY"
	TypeMention                NotificationType = "MENTION"
	TypeSecurityAlert          NotificationType = "SECURITY_ALERT"
	TypeLoginNewDevice         NotificationType = "LOGIN_NEW_DEVICE"
	TypePasswordChanged        NotificationType = "PASSWORD_CHANGED"
	TypeSystemMaintenance      NotificationType = "SYSTEM_MAINTENANCE"
	TypeSystemUpdate           NotificationType = "SYSTEM_UPDATE"
	TypeAIMatchFound           NotificationType = "AI_MATCH_FOUND"
	TypeAIScoreReady           NotificationType = "AI_SCORE_READY"
	TypeReportReady            NotificationType = "REPORT_READY"
	TypeWeeklyReport           NotificationType = "WEEKLY_REPORT"
	TypeTaskReminder           NotificationType = "TASK_REMINDER"
	TypeDeadlineApproaching    NotificationType = "DEADLINE_APPROACHING"
)

var typeCategories = map[NotificationType]Category{
	TypeCandidateApplied:       CategoryHRActivities,
	TypeCandidateStatusChanged: CategoryHRActivities,
	TypeInterviewScheduled:     CategoryHRActivities,
	TypeInterviewReminder:      CategoryReminders,
	TypeJobPosted:              CategoryHRActivities,
	TypeJobClosed:              CategoryHRActivities,
	TypeJobExpiring:            CategoryReminders,
	TypeCommentPosted:          CategoryCollaboration,
	TypeCommentReply:           CategoryCollaboration,
	TypeMention:                CategoryCollaboration,
	TypeSecurityAlert:          CategorySecurityAlerts,
	TypeLoginNewDevice:         CategorySecurityAlerts,
	TypePasswordChanged:        CategorySecurityAlerts,
	TypeSystemMaintenance:      CategorySystemUpdates,
	TypeSystemUpdate:           CategorySystemUpdates,
	TypeAIMatchFound:           CategoryAIInsights,
	TypeAIScoreReady:           CategoryAIInsights,
	TypeReportReady:            CategoryReports,
	TypeWeeklyReport:           CategoryReports,
	TypeTaskReminder:           CategoryReminders,
	TypeDeadlineApproaching:    CategoryReminders,
}

var typePriorities = map[NotificationType]Priority{
	TypeCandidateApplied:       PriorityMedium,
	TypeCandidateStatusChanged: PriorityMedium,
	TypeInterviewScheduled:     PriorityHigh,
	TypeInterviewReminder:      PriorityHigh,
	TypeJobPosted:              PriorityLow,
	TypeJobClosed:              PriorityLow,
	TypeJobExpiring:            PriorityMedium,
	TypeCommentPosted:          PriorityLow,
	TypeCommentReply:           PriorityMedium,
	TypeMention:                PriorityMedium,
	TypeSecurityAlert:          PriorityCritical,
	TypeLoginNewDevice:         PriorityHigh,
	TypePasswordChanged:        PriorityHigh,
	TypeSystemMaintenance:      PriorityMedium,
	TypeSystemUpdate:           PriorityLow,
	TypeAIMatchFound:           PriorityMedium,
	TypeAIScoreReady:           PriorityLow,
	TypeReportReady:            PriorityLow,
	TypeWeeklyReport:           PriorityLow,
	TypeTaskReminder:           PriorityMedium,
	TypeDeadlineApproaching:    PriorityHigh,
}

// Valid reports whether t is a known notification type
func (t NotificationType) Valid() bool {
	_, ok := typeCategories[t]
	return ok
}

// CategoryForType returns the static category of a notification type
func CategoryForType(t NotificationType) Category {
	if c, ok := typeCategories[t]; ok {
		return c
	}
	return CategorySystemUpdates
}

// DefaultPriorityForType returns the static default priority of a notification type
func DefaultPriorityForType(t NotificationType) Priority {
	if p, ok := typePriorities[t]; ok {
		return p
	}
	return PriorityMedium
}

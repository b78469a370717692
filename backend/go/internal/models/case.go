package models

import "time"

// CaseStatus is the lifecycle state of a support case as reported by the
// manufacturer portal. Only open and resolved are ever persisted.
type CaseStatus string

const (
	CaseOpen     CaseStatus = "open"
	CaseResolved CaseStatus = "resolved"
	CaseUnknown  CaseStatus = "unknown"
)

// Valid reports whether s is one of the known statuses.
func (s CaseStatus) Valid() bool {
	switch s {
	case CaseOpen, CaseResolved, CaseUnknown:
		return true
	}
	return false
}

// SupportCase is one case filed on behalf of a user with the manufacturer portal.
type SupportCase struct {
	TaskNumber      string     `gorm:"primaryKey;size:64" bson:"_id" json:"task_number"`
	UserID          string     `gorm:"index;size:36;not null" bson:"user_id" json:"user_id"`
	OriginalText    string     `gorm:"type:text;not null" bson:"original_text" json:"original_text"`
	TranslatedText  string     `gorm:"type:text" bson:"translated_text,omitempty" json:"translated_text,omitempty"`
	Status          CaseStatus `gorm:"type:varchar(20);index;default:'open';not null" bson:"status" json:"status"`
	SupportResponse string     `gorm:"type:text" bson:"support_response,omitempty" json:"support_response,omitempty"`
	CreatedAt       time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `bson:"updated_at" json:"updated_at"`
}

func (SupportCase) TableName() string {
	return "support_cases"
}

// CaseEventType names a lifecycle transition published to the event topic.
type CaseEventType string

const (
	EventCaseSubmitted CaseEventType = "case.submitted"
	EventCaseResolved  CaseEventType = "case.resolved"
)

// CaseEvent is the message published for every case lifecycle transition.
type CaseEvent struct {
	EventID    string        `json:"event_id"`
	Type       CaseEventType `json:"type"`
	TaskNumber string        `json:"task_number"`
	UserID     string        `json:"user_id"`
	SessionID  string        `json:"session_id,omitempty"`
	Status     CaseStatus    `json:"status"`
	Response   string        `json:"response,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}

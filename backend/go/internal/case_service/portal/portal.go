// Package portal talks to the manufacturer's web support portal: it files
// new cases, reads their status and nudges the support team.
package portal

import (
	"context"
	"errors"
	"regexp"

	"RoboSupport/backend/go/internal/models"
)

var (
	// ErrSubmissionFailed means the portal did not hand back a tracking number.
	ErrSubmissionFailed = errors.New("case submission failed")
	// ErrReminderFailed means the portal did not confirm the reminder.
	ErrReminderFailed = errors.New("reminder was not accepted")
)

// taskNumberPattern matches the tracking identifiers issued by the portal.
var taskNumberPattern = regexp.MustCompile(`SUP-[A-Z0-9]+`)

// Adapter is the portal contract the rest of the service depends on.
//
// CheckStatus never fails hard: an unreachable portal, an unknown case or an
// unreadable page all come back as models.CaseUnknown, optionally with an
// error describing why.
type Adapter interface {
	Submit(ctx context.Context, userID, issueText string) (string, error)
	CheckStatus(ctx context.Context, taskNumber string) (models.CaseStatus, string, error)
	SendReminder(ctx context.Context, taskNumber string) error
}

// ExtractTaskNumber returns the first tracking number in text, or "".
func ExtractTaskNumber(text string) string {
	return taskNumberPattern.FindString(text)
}

package notifier

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
)

var resolutionTemplate = template.Must(template.New("resolution").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; background-color: #f9fafb;">
<div style="background-color: #ffffff; border-radius: 12px; padding: 30px;">
  <div style="background: #2563eb; color: white; padding: 20px; border-radius: 8px; margin-bottom: 25px; text-align: center;">
    <h2 style="margin: 0;">Your Support Case Has Been Resolved</h2>
  </div>
  <p>Hello {{.Username}},</p>
  <p>Good news! The support team has resolved your case.</p>
  <div style="background-color: #eff6ff; border-left: 4px solid #2563eb; padding: 15px; margin: 20px 0;">
    <strong>Tracking Number:</strong> <code>{{.TaskNumber}}</code>
  </div>
  <h3>Support Team Response</h3>
  <div style="background-color: #f3f4f6; padding: 15px; border-radius: 8px;">
    {{range $i, $line := .Lines}}{{if $i}}<br>{{end}}{{$line}}{{end}}
  </div>
  <p style="margin-top: 25px;">If you have any further questions, feel free to reply in the chat.</p>
</div>
</body>
</html>
`))

type resolutionData struct {
	Username   string
	TaskNumber string
	Lines      []string
}

// RenderResolutionEmail builds the subject and HTML body of the "case
// resolved" e-mail. All user-visible text is HTML-escaped; line breaks in
// the response are kept.
func RenderResolutionEmail(username, taskNumber, response string) (string, string, error) {
	if username == "" {
		username = "there"
	}
	data := resolutionData{
		Username:   username,
		TaskNumber: taskNumber,
		Lines:      strings.Split(strings.ReplaceAll(response, "\r\n", "\n"), "\n"),
	}

	var body bytes.Buffer
	if err := resolutionTemplate.Execute(&body, data); err != nil {
		return "", "", fmt.Errorf("render resolution email: %w", err)
	}
	subject := fmt.Sprintf("Your Support Case %s Has Been Resolved", taskNumber)
	return subject, body.String(), nil
}

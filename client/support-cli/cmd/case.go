package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

type supportCase struct {
	TaskNumber      string    `json:"task_number"`
	UserID          string    `json:"user_id"`
	OriginalText    string    `json:"original_text"`
	Status          string    `json:"status"`
	SupportResponse string    `json:"support_response"`
	CreatedAt       time.Time `json:"created_at"`
	Monitored       bool      `json:"monitored"`
}

type notice struct {
	Type       string `json:"type"`
	TaskNumber string `json:"task_number"`
	Message    string `json:"message"`
}

var caseCmd = &cobra.Command{
	Use:   "case",
	Short: "File and follow support cases",
}

var translated string

var caseSubmitCmd = &cobra.Command{
	Use:   "submit [issue description]",
	Short: "File a case and wait for the support team's answer",
	Long: `Opens a session, files the case and keeps the session open until the case is
resolved. Interrupting the command ends the session, which stops monitoring.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		return submitAndWatch(ctx, newClient(), args[0], translated, cmd.OutOrStdout())
	},
}

var caseStatusCmd = &cobra.Command{
	Use:   "status [task number]",
	Short: "Check the current status of a case",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var out struct {
			Status  string `json:"status"`
			Message string `json:"message"`
			Cached  bool   `json:"cached"`
		}
		if err := newClient().do(http.MethodGet, "/api/v1/cases/"+url.PathEscape(args[0])+"/status", nil, &out, nil); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out.Message)
		return nil
	},
}

var caseRemindCmd = &cobra.Command{
	Use:   "remind [task number]",
	Short: "Send the support team a reminder about an open case",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient().do(http.MethodPost, "/api/v1/cases/"+url.PathEscape(args[0])+"/reminder", nil, nil, nil); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Reminder sent for %s\n", args[0])
		return nil
	},
}

var page, limit int

var caseListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your cases",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var out struct {
			Cases []supportCase `json:"cases"`
		}
		path := "/api/v1/cases?page=" + strconv.Itoa(page) + "&limit=" + strconv.Itoa(limit)
		if err := newClient().do(http.MethodGet, path, nil, &out, nil); err != nil {
			return err
		}
		printCases(cmd.OutOrStdout(), out.Cases, false)
		return nil
	},
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage chat sessions",
}

var sessionEndCmd = &cobra.Command{
	Use:   "end [session id]",
	Short: "End a session and stop its monitors",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var out struct {
			Cancelled int `json:"cancelled_monitors"`
		}
		if err := newClient().do(http.MethodDelete, "/api/v1/sessions/"+url.PathEscape(args[0]), nil, &out, nil); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Session ended, %d monitor(s) stopped\n", out.Cancelled)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(caseCmd, sessionCmd)
	caseCmd.AddCommand(caseSubmitCmd, caseStatusCmd, caseRemindCmd, caseListCmd)
	sessionCmd.AddCommand(sessionEndCmd)

	caseSubmitCmd.Flags().StringVar(&translated, "translated", "", "English translation of the issue, if it was written in another language")
	caseListCmd.Flags().IntVar(&page, "page", 1, "page number")
	caseListCmd.Flags().IntVar(&limit, "limit", 20, "cases per page")
}

// submitAndWatch files a case inside a fresh session and prints session
// notices until the case resolves or ctx ends.
func submitAndWatch(ctx context.Context, c *apiClient, issue, translatedIssue string, w io.Writer) error {
	conn, sessionID, err := c.openSession()
	if err != nil {
		return err
	}
	defer conn.Close()

	var res struct {
		TaskNumber string `json:"task_number"`
		Message    string `json:"message"`
	}
	body := map[string]string{"original_text": issue, "translated_text": translatedIssue}
	if err := c.do(http.MethodPost, "/api/v1/cases", body, &res, map[string]string{sessionHeader: sessionID}); err != nil {
		return err
	}
	fmt.Fprintln(w, res.Message)
	fmt.Fprintln(w, "Waiting for the support team (Ctrl-C stops monitoring)...")

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-done:
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			conn.Close()
		}
	}()

	for {
		var n notice
		if err := conn.ReadJSON(&n); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("session closed: %w", err)
		}
		if n.Message != "" {
			fmt.Fprintln(w, n.Message)
		}
		if n.Type == "case_resolved" && n.TaskNumber == res.TaskNumber {
			return nil
		}
	}
}

func printCases(w io.Writer, cases []supportCase, withOwner bool) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if withOwner {
		fmt.Fprintln(tw, "TASK\tOWNER\tSTATUS\tMONITORED\tCREATED")
	} else {
		fmt.Fprintln(tw, "TASK\tSTATUS\tCREATED\tISSUE")
	}
	for _, c := range cases {
		created := c.CreatedAt.Local().Format("2006-01-02 15:04")
		if withOwner {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", c.TaskNumber, c.UserID, c.Status, c.Monitored, created)
		} else {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.TaskNumber, c.Status, created, truncate(c.OriginalText, 50))
		}
	}
	tw.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

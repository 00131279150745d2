// Package notification mails admin and user reports for the events the
// replicator core cannot resolve on its own: conflicting edits, forced
// overwrites, dispatch failures, and the directory report produced at
// startup.
package notification

import (
	"context"
	"fmt"
	"log"
	"os/exec"
	"strings"
	"time"

	"github.com/replicateio/tbridge/internal/replicator"
	"github.com/replicateio/tbridge/internal/translate"
	"github.com/replicateio/tbridge/internal/types"
)

// Config holds the addresses a MailNotifier sends to.
type Config struct {
	AdminEmail string // recipient for conflict/overwrite/failure mail
	FromName   string // display name used in the subject prefix, e.g. "tbridge"
}

// MailNotifier implements replicator.Notifier by shelling out to the
// system mail command, falling back to logging the message when no
// mail transport is available.
type MailNotifier struct {
	cfg Config
}

// NewMailNotifier builds a MailNotifier that sends every notification
// to cfg.AdminEmail.
func NewMailNotifier(cfg Config) *MailNotifier {
	return &MailNotifier{cfg: cfg}
}

var _ replicator.Notifier = (*MailNotifier)(nil)

func (n *MailNotifier) subjectPrefix() string {
	if n.cfg.FromName != "" {
		return fmt.Sprintf("[%s]", n.cfg.FromName)
	}
	return "[tbridge]"
}

// NotifyConflict mails the admin when an issue and its linked job both
// changed in the same poll cycle, before the configured conflict
// policy overwrites one side.
func (n *MailNotifier) NotifyConflict(ctx context.Context, issueID, jobname string, policy replicator.ConflictPolicy) error {
	subject := fmt.Sprintf("%s conflict on %s / %s", n.subjectPrefix(), issueID, jobname)
	var body strings.Builder
	fmt.Fprintf(&body, "Issue %s and job %s both changed since the last poll.\n\n", issueID, jobname)
	fmt.Fprintf(&body, "Resolution policy: %s\n", policy)
	return n.sendMail(subject, body.String())
}

// NotifyOverwrite mails the admin the pre-overwrite snapshot of a
// record right before the replicator discards it in favor of the
// other side's value, so a human can recover it by hand if the
// overwrite turns out to be unwanted.
func (n *MailNotifier) NotifyOverwrite(ctx context.Context, issueID, jobname string, snapshot types.Issue) error {
	subject := fmt.Sprintf("%s overwrite on %s / %s", n.subjectPrefix(), issueID, jobname)
	var body strings.Builder
	fmt.Fprintf(&body, "The link between issue %s and job %s was just resolved by overwriting\n", issueID, jobname)
	body.WriteString("one side. Snapshot of the issue immediately before the overwrite:\n\n")
	fmt.Fprintf(&body, "  Title:       %s\n", snapshot.Title)
	fmt.Fprintf(&body, "  Status:      %s\n", snapshot.Status)
	fmt.Fprintf(&body, "  Assignee:    %s\n", snapshot.Assignee)
	fmt.Fprintf(&body, "  Description:\n%s\n", indent(snapshot.Description))
	return n.sendMail(subject, body.String())
}

// NotifyFailure mails the admin a stage name and error when a
// replication step fails outright, mirroring the traceback mail a
// failed revert sends in addition to its own failure report.
func (n *MailNotifier) NotifyFailure(ctx context.Context, stage string, failure error) error {
	subject := fmt.Sprintf("%s failure during %s", n.subjectPrefix(), stage)
	body := fmt.Sprintf("Stage: %s\nTime: %s\nError: %v\n", stage, time.Now().UTC().Format(time.RFC3339), failure)
	return n.sendMail(subject, body)
}

// NotifyStartupReport mails the admin the unmatched-user and
// duplicate-email report built while pairing the two user
// directories during startup.
func (n *MailNotifier) NotifyStartupReport(ctx context.Context, dirs *translate.UserDirectories) error {
	subject := fmt.Sprintf("%s startup user directory report", n.subjectPrefix())
	body, err := renderStartupReport(dirs)
	if err != nil {
		return fmt.Errorf("notify_startup_report: %w", err)
	}
	return n.sendMail(subject, body)
}

func indent(s string) string {
	if s == "" {
		return "  (none)"
	}
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = "  " + l
	}
	return strings.Join(lines, "\n")
}

// sendMail shells out to the system mail command, the same transport
// and fallback beads uses for decision-point email: if the mail
// command isn't available, the message is logged instead of lost.
func (n *MailNotifier) sendMail(subject, body string) error {
	if n.cfg.AdminEmail == "" {
		log.Printf("notification: no admin email configured, logging instead\nSubject: %s\n%s", subject, body)
		return nil
	}

	cmd := exec.Command("mail", "-s", subject, n.cfg.AdminEmail)
	cmd.Stdin = strings.NewReader(body)
	if err := cmd.Run(); err != nil {
		log.Printf("notification: mail command failed, logging instead (to %s):\nSubject: %s\n%s", n.cfg.AdminEmail, subject, body)
		return fmt.Errorf("mail command failed (logged instead): %w", err)
	}
	return nil
}

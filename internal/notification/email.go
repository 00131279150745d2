package notification

import (
	"bytes"
	"fmt"
	"sort"
	"text/template"

	"github.com/replicateio/tbridge/internal/translate"
)

// startupReportData holds the data for rendering the startup
// directory report template.
type startupReportData struct {
	UnmatchedSide0      []string
	UnmatchedSide1      []string
	DuplicateEmailsSide0 map[string][]string
	DuplicateEmailsSide1 map[string][]string
}

const startupReportTemplate = `User directory report
======================

{{if .UnmatchedSide0}}Side-0 users with no side-1 counterpart:
{{range .UnmatchedSide0}}  - {{.}}
{{end}}
{{end}}{{if .UnmatchedSide1}}Side-1 users with no side-0 counterpart:
{{range .UnmatchedSide1}}  - {{.}}
{{end}}
{{end}}{{if .DuplicateEmailsSide0}}Side-0 emails claimed by more than one user:
{{range $email, $ids := .DuplicateEmailsSide0}}  - {{$email}}: {{range $ids}}{{.}} {{end}}
{{end}}
{{end}}{{if .DuplicateEmailsSide1}}Side-1 emails claimed by more than one user:
{{range $email, $names := .DuplicateEmailsSide1}}  - {{$email}}: {{range $names}}{{.}} {{end}}
{{end}}
{{end}}{{if not (or .UnmatchedSide0 .UnmatchedSide1 .DuplicateEmailsSide0 .DuplicateEmailsSide1)}}Both user directories matched cleanly; no discrepancies found.
{{end}}`

// renderStartupReport renders the plain text startup directory
// report mailed to the admin with text/template, since the mail
// transport carries plain text only.
func renderStartupReport(dirs *translate.UserDirectories) (string, error) {
	data := startupReportData{
		UnmatchedSide0:       sortedCopy(dirs.UnmatchedSide0),
		UnmatchedSide1:       sortedCopy(dirs.UnmatchedSide1),
		DuplicateEmailsSide0: dirs.DuplicateEmailsSide0(),
		DuplicateEmailsSide1: dirs.DuplicateEmailsSide1(),
	}

	tmpl, err := template.New("startup_report").Parse(startupReportTemplate)
	if err != nil {
		return "", fmt.Errorf("parse startup report template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render startup report: %w", err)
	}
	return buf.String(), nil
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}

package jobstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/replicateio/tbridge/internal/types"
)

// UpdateJob writes a merged job record (the caller's changes applied
// over the job's current fields) and reports the server's
// acknowledgement. force bypasses the "once"/read-only persistence
// rules for the forced-overwrite path the dispatch table uses when
// side 0 wins a conflict. On AckSaved, the caller is responsible for
// incrementing jobUpdates[name] so the event log's echo of this write
// is not mistaken for a third-party change on the next poll.
func (c *Client) UpdateJob(ctx context.Context, job types.Job, changes map[string]string, force bool) (types.Job, Ack, error) {
	merged := make(map[string]string, len(job.Fields)+len(changes))
	for k, v := range job.Fields {
		merged[k] = v
	}
	for k, v := range changes {
		merged[k] = v
	}

	args := []string{"job", "-i"}
	if force {
		args = append(args, "-f")
	}
	out, err := c.run(ctx, args, record(merged))
	if err != nil {
		return types.Job{}, AckUnknown, fmt.Errorf("jobstore: update_job(%s): %w", job.Name, err)
	}

	line := lastNonEmptyLine(out)
	ackName := job.Name
	if job.Name == "new" {
		if f := strings.Fields(line); len(f) == 3 && f[0] == "Job" {
			ackName = f[1]
			merged["Job"] = ackName
		}
	}
	ack := ParseAck(line, ackName)
	if ack == AckUnknown {
		return types.Job{}, AckUnknown, fmt.Errorf("jobstore: update_job(%s): unrecognised server response %q", job.Name, strings.TrimSpace(out))
	}

	result := job
	result.Fields = merged
	if actualName, ok := merged["Job"]; ok {
		result.Name = actualName
	}
	return result, ack, nil
}

func lastNonEmptyLine(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			return lines[i]
		}
	}
	return ""
}

package replicator

import (
	"context"
	"fmt"

	"github.com/replicateio/tbridge/internal/issuestore"
	"github.com/replicateio/tbridge/internal/types"
)

// Pair is one (issue, job) correspondence discovered or confirmed
// during a poll cycle. Either Issue or Job may be nil: a pair with
// both populated has a link row; a pair with only one populated and
// no link row is a brand-new record awaiting creation on the other
// side.
type Pair struct {
	IssueID string
	JobName string
	Class   types.PairClass

	Issue *types.Issue
	Job   *types.Job

	Link   types.LinkRow
	IsLink bool
}

// buildPairs joins the issues and jobs that changed this cycle against
// the link table, producing one Pair per distinct issue or job touched.
// An issue and a job that changed in the same cycle and share a link
// row collapse into a single ClassBoth pair; everything else is
// ClassIssueOnly or ClassJobOnly.
func (e *Engine) buildPairs(ctx context.Context, issues []types.Issue, jobs []types.Job) ([]Pair, error) {
	byIssueID := make(map[string]*Pair)
	var order []string

	get := func(id string) *Pair {
		p, ok := byIssueID[id]
		if !ok {
			p = &Pair{IssueID: id}
			byIssueID[id] = p
			order = append(order, id)
		}
		return p
	}

	for i := range issues {
		iss := issues[i]
		p := get(iss.IssueID)
		p.Issue = &issues[i]

		link, err := e.Issues.LinkForIssue(ctx, iss.IssueID)
		switch {
		case err == nil:
			p.Link = link
			p.IsLink = true
			p.JobName = link.JobName
		case issuestore.IsNotFound(err):
		default:
			return nil, fmt.Errorf("link_for_issue(%s): %w", iss.IssueID, err)
		}
	}

	jobByName := make(map[string]*types.Job)
	for i := range jobs {
		jobByName[jobs[i].Name] = &jobs[i]
	}

	for i := range jobs {
		job := jobs[i]
		link, err := e.Issues.LinkForJob(ctx, job.Name)
		switch {
		case err == nil:
			p := get(link.IssueID)
			p.Job = jobByName[job.Name]
			p.Link = link
			p.IsLink = true
			p.JobName = job.Name
		case issuestore.IsNotFound(err):
			p := &Pair{JobName: job.Name, Job: jobByName[job.Name]}
			order = append(order, "\x00job:"+job.Name)
			byIssueID["\x00job:"+job.Name] = p
		default:
			return nil, fmt.Errorf("link_for_job(%s): %w", job.Name, err)
		}
	}

	pairs := make([]Pair, 0, len(order))
	for _, key := range order {
		p := byIssueID[key]
		switch {
		case p.Issue != nil && p.Job != nil:
			p.Class = types.ClassBoth
		case p.Issue != nil:
			p.Class = types.ClassIssueOnly
		default:
			p.Class = types.ClassJobOnly
		}
		pairs = append(pairs, *p)
	}
	return pairs, nil
}

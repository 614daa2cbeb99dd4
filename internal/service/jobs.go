package service

import (
	"context"
	"errors"

	"github.com/onurcolak/retention-outbox-service/internal/domain"
)

var ErrUnknownJob = errors.New("unknown job")

type JobFunc func(ctx context.Context, opts domain.RunOptions) (domain.JobResult, error)

type Job struct {
	Name string
	Run  JobFunc
}

// JobRunner holds the batch jobs in pipeline order.
type JobRunner struct {
	jobs []Job
}

func NewJobRunner(ingestion *IngestionService, drafts *DraftService, outbox *OutboxService) *JobRunner {
	return NewJobRunnerFromJobs([]Job{
		{Name: domain.JobIngestion, Run: ingestion.RunIngestion},
		{Name: domain.JobForcedWeekly, Run: drafts.GenerateForcedWeekly},
		{Name: domain.JobTriggered, Run: drafts.GenerateTriggered},
		{Name: domain.JobAutosend, Run: outbox.RunAutosend},
		{Name: domain.JobEvaluator, Run: outbox.RunEvaluator},
		{Name: domain.JobDispatcher, Run: outbox.RunDispatcher},
	})
}

func NewJobRunnerFromJobs(jobs []Job) *JobRunner {
	return &JobRunner{jobs: jobs}
}

// Jobs returns the jobs in the order a scheduler tick runs them.
func (r *JobRunner) Jobs() []Job {
	out := make([]Job, len(r.jobs))
	copy(out, r.jobs)
	return out
}

func (r *JobRunner) Run(ctx context.Context, name string, opts domain.RunOptions) (domain.JobResult, error) {
	for _, j := range r.jobs {
		if j.Name == name {
			return j.Run(ctx, opts)
		}
	}
	return domain.JobResult{Job: name}, ErrUnknownJob
}

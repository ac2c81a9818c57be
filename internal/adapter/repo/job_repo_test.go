package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"storyboard/internal/domain"
	"storyboard/internal/sqlinline"
)

func jobRowScanner(id, subjectID, status string) func(dest ...any) error {
	return func(dest ...any) error {
		*dest[0].(*string) = id
		*dest[1].(*string) = subjectID
		*dest[2].(*string) = string(domain.JobKindBatchImageGeneration)
		*dest[3].(*string) = status
		*dest[4].(*[]byte) = []byte(`{"provider":"synthetic","style":"illustration"}`)
		*dest[5].(*int) = 2
		*dest[6].(*int) = 0
		*dest[7].(*int) = 0
		*dest[8].(*string) = ""
		*dest[10].(*string) = ""
		*dest[11].(*time.Time) = time.Now()
		*dest[12].(*time.Time) = time.Now()
		return nil
	}
}

func TestCreateJobInsertsJobAndItemsInOneTransaction(t *testing.T) {
	sql := newStubSQL()
	sql.rows[sqlinline.QSelectBatchJob] = jobRowScanner("job-1", "script-1", "pending")
	repo := NewJobRepository(sql)

	job := domain.NewBatchJob("job-1", "script-1", domain.JobConfig{Provider: "synthetic"}, []string{"c1", "c2"}, time.Now())
	stored, created, err := repo.CreateJob(context.Background(), job)
	if err != nil {
		t.Fatalf("CreateJob error: %v", err)
	}
	if !created || stored.ID != "job-1" || stored.Config.Provider != "synthetic" {
		t.Fatalf("unexpected result created=%v job=%+v", created, stored)
	}
	if sql.txCount != 1 {
		t.Fatalf("expected one transaction, got %d", sql.txCount)
	}
	if got := sql.executed(sqlinline.QInsertBatchJobItem); got != 2 {
		t.Fatalf("expected 2 item inserts, got %d", got)
	}
}

func TestCreateJobReturnsActiveJobOnUniqueViolation(t *testing.T) {
	sql := newStubSQL()
	sql.execErr[sqlinline.QInsertBatchJob] = &pgconn.PgError{Code: "23505"}
	sql.rows[sqlinline.QSelectActiveBatchJobForSubject] = jobRowScanner("job-existing", "script-1", "processing")
	repo := NewJobRepository(sql)

	job := domain.NewBatchJob("job-new", "script-1", domain.JobConfig{}, []string{"c1"}, time.Now())
	stored, created, err := repo.CreateJob(context.Background(), job)
	if err != nil {
		t.Fatalf("CreateJob error: %v", err)
	}
	if created {
		t.Fatalf("expected existing job to be reused")
	}
	if stored.ID != "job-existing" || stored.Status != domain.JobStatusProcessing {
		t.Fatalf("unexpected job: %+v", stored)
	}
	if sql.rolledBac != 1 {
		t.Fatalf("expected rollback, got %d", sql.rolledBac)
	}
}

func TestClaimNextJobWithoutWork(t *testing.T) {
	repo := NewJobRepository(newStubSQL())
	if _, err := repo.ClaimNextJob(context.Background(), "worker-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTransitionJobPassesSourceStates(t *testing.T) {
	sql := newStubSQL()
	sql.affected[sqlinline.QTransitionBatchJob] = 1
	repo := NewJobRepository(sql)

	ok, err := repo.TransitionJob(context.Background(), domain.JobTransition{
		JobID: "job-1",
		From:  []domain.JobStatus{domain.JobStatusPending, domain.JobStatusProcessing},
		To:    domain.JobStatusPaused,
	})
	if err != nil || !ok {
		t.Fatalf("TransitionJob ok=%v err=%v", ok, err)
	}
	args := sql.execs[0].args
	if args[1] != "paused" {
		t.Fatalf("target status = %v", args[1])
	}
	from, _ := args[5].([]string)
	if len(from) != 2 || from[0] != "pending" || from[1] != "processing" {
		t.Fatalf("source states = %#v", args[5])
	}
}

func TestTransitionJobMapsUniqueViolation(t *testing.T) {
	sql := newStubSQL()
	sql.execErr[sqlinline.QTransitionBatchJob] = &pgconn.PgError{Code: "23505"}
	repo := NewJobRepository(sql)

	_, err := repo.TransitionJob(context.Background(), domain.JobTransition{JobID: "job-1", From: []domain.JobStatus{domain.JobStatusPaused}, To: domain.JobStatusPending})
	if !errors.Is(err, domain.ErrDuplicateOperation) {
		t.Fatalf("expected ErrDuplicateOperation, got %v", err)
	}
}

func TestUpdateItemMissingRow(t *testing.T) {
	repo := NewJobRepository(newStubSQL())
	_, err := repo.UpdateItem(context.Background(), &domain.JobItem{JobID: "gone", Status: domain.ItemStatusCompleted})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReconcileCountsDemotions(t *testing.T) {
	sql := newStubSQL()
	sql.affected[sqlinline.QReconcileBatchJobs] = 1
	sql.affected[sqlinline.QReconcileBatchJobItems] = 2
	repo := NewJobRepository(sql)

	jobs, items, err := repo.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile error: %v", err)
	}
	if jobs != 1 || items != 2 {
		t.Fatalf("jobs=%d items=%d", jobs, items)
	}
}

func itemRowScanner(jobID string, position int, status string) func(dest ...any) error {
	return func(dest ...any) error {
		*dest[0].(*string) = jobID
		*dest[1].(*int) = position
		*dest[2].(*string) = jobID + "-chunk"
		*dest[3].(*string) = status
		*dest[4].(*string) = ""
		*dest[5].(*int) = 1
		if status == string(domain.ItemStatusCompleted) {
			*dest[8].(*string) = "/static/" + jobID + ".png"
		}
		return nil
	}
}

func TestListJobsForSubjectLoadsItems(t *testing.T) {
	sql := newStubSQL()
	sql.queries[sqlinline.QListBatchJobsForSubject] = []func(dest ...any) error{
		jobRowScanner("job-2", "script-1", "processing"),
		jobRowScanner("job-1", "script-1", "completed"),
	}
	sql.queries[sqlinline.QSelectBatchJobItems] = []func(dest ...any) error{
		itemRowScanner("job-x", 0, string(domain.ItemStatusCompleted)),
		itemRowScanner("job-x", 1, string(domain.ItemStatusPending)),
	}
	repo := NewJobRepository(sql)

	jobs, err := repo.ListJobsForSubject(context.Background(), "script-1")
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("jobs = %d, want 2", len(jobs))
	}
	for _, job := range jobs {
		if len(job.Items) != 2 {
			t.Fatalf("job %s items = %d, want 2", job.ID, len(job.Items))
		}
		if job.Items[0].Status != domain.ItemStatusCompleted || job.Items[0].Result.ImageURL == "" {
			t.Fatalf("job %s first item = %+v", job.ID, job.Items[0])
		}
		if job.Items[1].Position != 1 {
			t.Fatalf("job %s second item position = %d", job.ID, job.Items[1].Position)
		}
	}
}

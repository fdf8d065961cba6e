package chatservice

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mixaill76/cursor-gateway/internal/worker"
)

type countingJob struct {
	wg *sync.WaitGroup
}

func (j countingJob) Execute(ctx context.Context) worker.Result {
	j.wg.Done()
	return jobResult{}
}

func TestSubmitFallsBackToGoroutineWithoutQueue(t *testing.T) {
	s := &Service{}
	var wg sync.WaitGroup
	wg.Add(1)
	s.submit(countingJob{wg: &wg})

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job never ran without a wired queue")
	}
}

func TestSubmitEnqueuesOntoJobsChannel(t *testing.T) {
	queue := make(chan worker.Job, 1)
	s := &Service{Jobs: queue}
	var wg sync.WaitGroup
	wg.Add(1)
	s.submit(countingJob{wg: &wg})

	select {
	case job := <-queue:
		job.Execute(context.Background())
	case <-time.After(time.Second):
		t.Fatal("job was not enqueued")
	}
	wg.Wait()
}

func TestSubmitFallsBackWhenQueueSaturated(t *testing.T) {
	queue := make(chan worker.Job) // unbuffered, nothing draining it
	s := &Service{Jobs: queue}
	var wg sync.WaitGroup
	wg.Add(1)
	s.submit(countingJob{wg: &wg})

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job never ran when the queue was saturated")
	}
}

func TestJobResultError(t *testing.T) {
	assert.NoError(t, jobResult{}.Error())
}

// Package atpg runs the external test pattern generator against circuit
// files and tracks run state. The binary is opaque: the runner only manages
// its lifecycle and scrapes its stdout for progress markers, recording runs
// in the database so job history survives restarts.
package atpg

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/Ramachandra-2k96/AtlantaGUI-sub000/internal/database"
	"github.com/Ramachandra-2k96/AtlantaGUI-sub000/internal/workspace"
	"github.com/google/uuid"
)

// maxLogLines caps the in-memory log ring per job.
const maxLogLines = 2000

// Runner starts and tracks generator jobs. One run per circuit at a time.
type Runner struct {
	binary   string
	resolver *workspace.Resolver

	mu   sync.Mutex
	jobs map[string]*Job
}

// Job is one live or finished generator run.
type Job struct {
	ID        string
	Circuit   string
	StartedAt time.Time

	cmd  *exec.Cmd
	done chan struct{}

	mu         sync.Mutex
	stats      Stats
	status     string
	errMsg     string
	finishedAt *time.Time
	logLines   []string
	cancelled  bool
}

// JobStatus is a snapshot of job state for the API.
type JobStatus struct {
	ID            string     `json:"id"`
	Circuit       string     `json:"circuit"`
	Status        string     `json:"status"`
	Progress      int        `json:"progress"`
	FaultCoverage float64    `json:"fault_coverage"`
	TestPatterns  int        `json:"test_patterns"`
	Error         string     `json:"error,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// NewRunner creates a runner for the given generator binary.
func NewRunner(binary string, resolver *workspace.Resolver) *Runner {
	return &Runner{
		binary:   binary,
		resolver: resolver,
		jobs:     make(map[string]*Job),
	}
}

// Start launches the generator on circuit (a workspace-relative or absolute
// path inside the allow-listed roots). extraArgs are passed through before
// the circuit path. Fails if the circuit does not exist or already has a
// running job.
func (r *Runner) Start(circuit string, extraArgs []string) (*Job, error) {
	path, err := r.resolver.Within(circuit)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("circuit file: %w", err)
	}

	r.mu.Lock()
	for _, j := range r.jobs {
		if j.Circuit == path && j.Status().Status == database.JobRunning {
			r.mu.Unlock()
			return nil, fmt.Errorf("a job for %s is already running", circuit)
		}
	}
	r.mu.Unlock()

	job := &Job{
		ID:        uuid.New().String(),
		Circuit:   path,
		StartedAt: time.Now(),
		done:      make(chan struct{}),
		status:    database.JobRunning,
	}

	args := append(append([]string{}, extraArgs...), path)
	cmd := exec.Command(r.binary, args...)
	cmd.Dir = r.resolver.DefaultRoot()

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw
	job.cmd = cmd

	if err := cmd.Start(); err != nil {
		pw.Close()
		pr.Close()
		return nil, fmt.Errorf("start %s: %w", r.binary, err)
	}

	if database.DB != nil {
		rec := database.JobRecord{
			JobID:     job.ID,
			Circuit:   path,
			Args:      strings.Join(extraArgs, " "),
			Status:    database.JobRunning,
			StartedAt: job.StartedAt,
		}
		if err := database.DB.Create(&rec).Error; err != nil {
			log.Printf("[atpg] job %s: record create failed: %v", job.ID, err)
		}
	}

	r.mu.Lock()
	r.jobs[job.ID] = job
	r.mu.Unlock()

	log.Printf("[atpg] job %s started: %s %s", job.ID, r.binary, strings.Join(args, " "))
	go r.scrape(job, pr)
	go r.reap(job, pw)
	return job, nil
}

// scrape consumes generator output line by line, feeding the log ring and
// the progress parser.
func (r *Runner) scrape(job *Job, out io.Reader) {
	scanner := bufio.NewScanner(out)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()

		job.mu.Lock()
		job.logLines = append(job.logLines, line)
		if len(job.logLines) > maxLogLines {
			job.logLines = job.logLines[len(job.logLines)-maxLogLines:]
		}
		changed := job.stats.Apply(line)
		stats := job.stats
		job.mu.Unlock()

		if changed && database.DB != nil {
			database.DB.Model(&database.JobRecord{}).
				Where("job_id = ?", job.ID).
				Updates(map[string]any{
					"progress":       stats.Progress,
					"fault_coverage": stats.FaultCoverage,
					"test_patterns":  stats.TestPatterns,
				})
		}
	}
}

// reap waits for process exit and records the final status.
func (r *Runner) reap(job *Job, pw *io.PipeWriter) {
	err := job.cmd.Wait()
	pw.Close()

	now := time.Now()
	job.mu.Lock()
	job.finishedAt = &now
	switch {
	case job.cancelled:
		job.status = database.JobCancelled
	case err != nil:
		job.status = database.JobFailed
		job.errMsg = err.Error()
	default:
		job.status = database.JobSucceeded
	}
	status, errMsg, stats := job.status, job.errMsg, job.stats
	job.mu.Unlock()
	close(job.done)

	log.Printf("[atpg] job %s finished: status=%s coverage=%.2f%% patterns=%d",
		job.ID, status, stats.FaultCoverage, stats.TestPatterns)

	if database.DB != nil {
		database.DB.Model(&database.JobRecord{}).
			Where("job_id = ?", job.ID).
			Updates(map[string]any{
				"status":         status,
				"error":          errMsg,
				"progress":       stats.Progress,
				"fault_coverage": stats.FaultCoverage,
				"test_patterns":  stats.TestPatterns,
				"finished_at":    now,
			})
	}
}

// Get returns the in-memory job for id, or nil.
func (r *Runner) Get(id string) *Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jobs[id]
}

// Cancel kills a running job. Unknown or finished jobs return an error.
func (r *Runner) Cancel(id string) error {
	job := r.Get(id)
	if job == nil {
		return fmt.Errorf("job %s not found", id)
	}
	job.mu.Lock()
	if job.status != database.JobRunning {
		job.mu.Unlock()
		return fmt.Errorf("job %s is not running", id)
	}
	job.cancelled = true
	job.mu.Unlock()

	if job.cmd.Process != nil {
		job.cmd.Process.Kill()
	}
	return nil
}

// List returns recent job records from the database, newest first.
func (r *Runner) List(limit int) ([]database.JobRecord, error) {
	if database.DB == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	var recs []database.JobRecord
	err := database.DB.Order("started_at DESC").Limit(limit).Find(&recs).Error
	return recs, err
}

// Prune deletes finished job records older than the retention window.
// Returns the number of rows removed.
func (r *Runner) Prune(olderThan time.Duration) int {
	if database.DB == nil {
		return 0
	}
	cutoff := time.Now().Add(-olderThan)
	res := database.DB.
		Where("status <> ? AND started_at < ?", database.JobRunning, cutoff).
		Delete(&database.JobRecord{})
	if res.Error != nil {
		log.Printf("[atpg] prune failed: %v", res.Error)
		return 0
	}

	// Drop finished in-memory jobs past the same cutoff.
	r.mu.Lock()
	for id, j := range r.jobs {
		st := j.Status()
		if st.Status != database.JobRunning && st.FinishedAt != nil && st.FinishedAt.Before(cutoff) {
			delete(r.jobs, id)
		}
	}
	r.mu.Unlock()

	return int(res.RowsAffected)
}

// Status returns a snapshot of the job.
func (j *Job) Status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return JobStatus{
		ID:            j.ID,
		Circuit:       j.Circuit,
		Status:        j.status,
		Progress:      j.stats.Progress,
		FaultCoverage: j.stats.FaultCoverage,
		TestPatterns:  j.stats.TestPatterns,
		Error:         j.errMsg,
		StartedAt:     j.StartedAt,
		FinishedAt:    j.finishedAt,
	}
}

// Log returns the last n captured output lines.
func (j *Job) Log(n int) []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	if n <= 0 || n > len(j.logLines) {
		n = len(j.logLines)
	}
	out := make([]string, n)
	copy(out, j.logLines[len(j.logLines)-n:])
	return out
}

// Done is closed when the generator process has finished.
func (j *Job) Done() <-chan struct{} { return j.done }

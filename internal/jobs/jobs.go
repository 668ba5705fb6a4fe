// Package jobs runs scans in the background for the HTTP API and keeps
// their progress and final results.
package jobs

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tdh8316/socialhunt/internal/scan"
)

var ErrNotFound = errors.New("job not found")

type State string

const (
	StateRunning State = "running"
	StateDone    State = "done"
	StateFailed  State = "failed"
)

type Job struct {
	ID             string `json:"id"`
	TS             int64  `json:"ts"`
	State          State  `json:"state"`
	Username       string `json:"username"`
	ProvidersCount int    `json:"providers_count"`
	scan.Summary
	Results      []*scan.Result `json:"results"`
	ResultsTotal int            `json:"results_total"`
	Error        string         `json:"error,omitempty"`
}

func (j *Job) snapshot() *Job {
	c := *j
	c.Results = append([]*scan.Result(nil), j.Results...)
	if c.Results == nil {
		c.Results = []*scan.Result{}
	}
	return &c
}

// Store persists finished and running jobs.
type Store interface {
	Save(ctx context.Context, j *Job) error
	// Load returns ErrNotFound for unknown ids.
	Load(ctx context.Context, id string) (*Job, error)
	Close() error
}

// Scanner is the part of scan.Engine the manager needs.
type Scanner interface {
	Scan(ctx context.Context, identifier string, opts scan.ScanOptions) ([]*scan.Result, error)
	Catalog() *scan.Catalog
}

type Manager struct {
	engine Scanner
	store  Store
	log    logrus.FieldLogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.RWMutex
	jobs map[string]*Job
}

func NewManager(engine Scanner, store Store, log logrus.FieldLogger) *Manager {
	if store == nil {
		store = NewMemoryStore()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		engine: engine,
		store:  store,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
		jobs:   map[string]*Job{},
	}
}

// Start launches a scan and returns its job id immediately. extra addons run
// for this job only, after the enabled ones.
func (m *Manager) Start(username string, providers []string, extra ...scan.Addon) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", scan.ErrEmptyIdentifier
	}

	job := &Job{
		ID:             uuid.NewString(),
		TS:             time.Now().Unix(),
		State:          StateRunning,
		Username:       username,
		ProvidersCount: len(m.engine.Catalog().Select(providers)),
		Results:        []*scan.Result{},
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(job.ID, username, providers, extra)
	return job.ID, nil
}

func (m *Manager) run(id, username string, providers []string, extra []scan.Addon) {
	defer m.wg.Done()
	log := m.log.WithFields(logrus.Fields{"job": id, "username": username})

	final, err := m.engine.Scan(m.ctx, username, scan.ScanOptions{
		Providers:   providers,
		ExtraAddons: extra,
		OnResult: func(r *scan.Result) {
			// Addons keep mutating r after this call.
			c := r.Clone()
			m.mu.Lock()
			defer m.mu.Unlock()
			if j, ok := m.jobs[id]; ok {
				j.Results = append(j.Results, c)
				j.Summary.Add(c)
			}
		},
	})

	m.mu.Lock()
	j := m.jobs[id]
	if err != nil {
		j.State = StateFailed
		j.Error = err.Error()
		log.WithError(err).Warn("scan job failed")
	} else {
		j.State = StateDone
		j.Results = final
		j.Summary = scan.Summarize(final)
		log.WithField("found", j.Found).Info("scan job finished")
	}
	snap := j.snapshot()
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.store.Save(ctx, snap); err != nil {
		log.WithError(err).Error("persist job")
	}
}

// Get returns a copy of the job. A non-negative limit truncates Results;
// ResultsTotal always carries the full count.
func (m *Manager) Get(ctx context.Context, id string, limit int) (*Job, error) {
	m.mu.RLock()
	j, ok := m.jobs[id]
	var snap *Job
	if ok {
		snap = j.snapshot()
	}
	m.mu.RUnlock()

	if !ok {
		loaded, err := m.store.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		if _, raced := m.jobs[id]; !raced {
			m.jobs[id] = loaded
		}
		snap = m.jobs[id].snapshot()
		m.mu.Unlock()
	}

	snap.ResultsTotal = len(snap.Results)
	if limit >= 0 && len(snap.Results) > limit {
		snap.Results = snap.Results[:limit]
	}
	return snap, nil
}

// Wait blocks until every started job has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Close cancels running scans, waits for them and closes the store.
func (m *Manager) Close() error {
	m.cancel()
	m.wg.Wait()
	return m.store.Close()
}

package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/apptflow/services/scheduler-service/internal/model"
)

// memStore is an in-memory SchedulerStore and RunnerStore.
type memStore struct {
	mu       sync.Mutex
	details  map[string]model.AppointmentDetails
	rules    []model.AutomationRule
	jobs     []model.MessageJob
	feedback map[string]model.Feedback
	reasons  map[string]string

	failClaim bool
}

func newMemStore() *memStore {
	return &memStore{
		details:  map[string]model.AppointmentDetails{},
		feedback: map[string]model.Feedback{},
		reasons:  map[string]string{},
	}
}

func (m *memStore) GetAppointmentDetails(_ context.Context, id string) (model.AppointmentDetails, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.details[id]
	return d, ok, nil
}

func (m *memStore) ListEnabledRules(_ context.Context, businessID string, types []model.RuleType) ([]model.AutomationRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.AutomationRule
	for _, r := range m.rules {
		if r.BusinessID != businessID || !r.Enabled {
			continue
		}
		for _, t := range types {
			if r.Type == t {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

func (m *memStore) SkipQueuedJobs(_ context.Context, appointmentID string, types []model.RuleType, reason string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for i, j := range m.jobs {
		if j.AppointmentID != appointmentID || j.Status != model.JobQueued {
			continue
		}
		for _, t := range types {
			if j.RuleType == t {
				m.jobs[i].Status = model.JobSkipped
				m.jobs[i].ErrorReason = reason
				n++
			}
		}
	}
	return n, nil
}

func (m *memStore) SupersedeJob(_ context.Context, job model.MessageJob, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, j := range m.jobs {
		if sameKey(j, job) && j.Status == model.JobQueued {
			m.jobs[i].Status = model.JobSkipped
			m.jobs[i].ErrorReason = reason
		}
	}
	m.jobs = append(m.jobs, job)
	return nil
}

func (m *memStore) InsertJobIfAbsent(_ context.Context, job model.MessageJob) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if sameKey(j, job) && j.Status != model.JobSkipped {
			return false, nil
		}
	}
	m.jobs = append(m.jobs, job)
	return true, nil
}

func (m *memStore) FetchDueJobs(_ context.Context, now time.Time, limit int) ([]model.MessageJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.MessageJob
	for _, j := range m.jobs {
		if j.Status == model.JobQueued && !j.SendAt.After(now) {
			out = append(out, j)
		}
	}
	for i := 1; i < len(out); i++ {
		for k := i; k > 0 && out[k].SendAt.Before(out[k-1].SendAt); k-- {
			out[k], out[k-1] = out[k-1], out[k]
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) ClaimJob(_ context.Context, id string, _ time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failClaim {
		return false, context.DeadlineExceeded
	}
	for i, j := range m.jobs {
		if j.ID == id && j.Status == model.JobQueued {
			m.jobs[i].Status = model.JobClaimed
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) setStatus(id string, status model.JobStatus, reason string) {
	for i, j := range m.jobs {
		if j.ID == id {
			m.jobs[i].Status = status
			m.jobs[i].ErrorReason = reason
		}
	}
}

func (m *memStore) MarkJobSent(_ context.Context, id, providerID string, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, j := range m.jobs {
		if j.ID == id {
			m.jobs[i].Status = model.JobSent
			m.jobs[i].ProviderMessageID = providerID
			at := sentAt
			m.jobs[i].SentAt = &at
		}
	}
	return nil
}

func (m *memStore) MarkJobSkipped(_ context.Context, id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setStatus(id, model.JobSkipped, reason)
	return nil
}

func (m *memStore) MarkJobFailed(_ context.Context, id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setStatus(id, model.JobFailed, reason)
	return nil
}

func (m *memStore) GetRule(_ context.Context, businessID string, ruleType model.RuleType) (*model.AutomationRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rules {
		if r.BusinessID == businessID && r.Type == ruleType {
			rule := r
			return &rule, nil
		}
	}
	return nil, nil
}

func (m *memStore) EnsureFeedback(_ context.Context, appt model.Appointment) (model.Feedback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fb, ok := m.feedback[appt.ID]; ok {
		return fb, nil
	}
	fb := model.Feedback{ID: uuid.NewString(), AppointmentID: appt.ID, BusinessID: appt.BusinessID, CustomerID: appt.CustomerID, Token: uuid.NewString()}
	m.feedback[appt.ID] = fb
	return fb, nil
}

func (m *memStore) byStatus(appointmentID string, rt model.RuleType, status model.JobStatus) []model.MessageJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.MessageJob
	for _, j := range m.jobs {
		if j.AppointmentID == appointmentID && j.RuleType == rt && j.Status == status {
			out = append(out, j)
		}
	}
	return out
}

func (m *memStore) job(id string) model.MessageJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.ID == id {
			return j
		}
	}
	return model.MessageJob{}
}

func sameKey(a, b model.MessageJob) bool {
	return a.AppointmentID == b.AppointmentID && a.RuleType == b.RuleType && a.Channel == b.Channel
}

package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     SubmitRequest
		wantErr error
	}{
		{
			name: "valid https",
			req:  SubmitRequest{URL: "https://example.com/login", Consent: true, TermsAccepted: true, SimulationAck: true},
		},
		{
			name: "valid http with port",
			req:  SubmitRequest{URL: "http://localhost:3000", Consent: true, TermsAccepted: true, SimulationAck: true},
		},
		{
			name:    "empty url",
			req:     SubmitRequest{Consent: true, TermsAccepted: true, SimulationAck: true},
			wantErr: ErrInvalidURL,
		},
		{
			name:    "relative url",
			req:     SubmitRequest{URL: "/admin", Consent: true, TermsAccepted: true, SimulationAck: true},
			wantErr: ErrInvalidURL,
		},
		{
			name:    "unsupported scheme",
			req:     SubmitRequest{URL: "javascript:alert(1)", Consent: true, TermsAccepted: true, SimulationAck: true},
			wantErr: ErrInvalidURL,
		},
		{
			name:    "missing host",
			req:     SubmitRequest{URL: "https://", Consent: true, TermsAccepted: true, SimulationAck: true},
			wantErr: ErrInvalidURL,
		},
		{
			name:    "url checked before consent",
			req:     SubmitRequest{URL: "not a url"},
			wantErr: ErrInvalidURL,
		},
		{
			name:    "missing consent",
			req:     SubmitRequest{URL: "https://example.com", TermsAccepted: true, SimulationAck: true},
			wantErr: ErrConsentRequired,
		},
		{
			name:    "missing terms",
			req:     SubmitRequest{URL: "https://example.com", Consent: true, SimulationAck: true},
			wantErr: ErrConsentRequired,
		},
		{
			name:    "missing simulation acknowledgement",
			req:     SubmitRequest{URL: "https://example.com", Consent: true, TermsAccepted: true},
			wantErr: ErrConsentRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestScanJob_Transition(t *testing.T) {
	queued := ScanJob{ID: "j1", URL: "https://example.com", CreatedAt: time.Now(), Status: JobStatusQueued}

	running, err := queued.Transition(JobStatusRunning, "")
	require.NoError(t, err)
	assert.Equal(t, JobStatusRunning, running.Status)
	assert.Equal(t, JobStatusQueued, queued.Status, "receiver is not modified")

	_, err = running.Transition(JobStatusCompleted, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	completed, err := running.Transition(JobStatusCompleted, "r1")
	require.NoError(t, err)
	assert.Equal(t, "r1", completed.ResultID)
	require.NoError(t, completed.Validate())

	failed, err := running.Transition(JobStatusFailed, "ignored")
	require.NoError(t, err)
	assert.Empty(t, failed.ResultID)

	for _, from := range []ScanJob{queued, completed, failed} {
		for _, next := range []JobStatus{JobStatusQueued, JobStatusCompleted, JobStatusFailed} {
			_, err := from.Transition(next, "r2")
			assert.ErrorIs(t, err, ErrInvalidTransition, "%s -> %s", from.Status, next)
		}
	}
}

func TestScanJob_Validate(t *testing.T) {
	tests := []struct {
		name    string
		job     ScanJob
		wantErr bool
	}{
		{name: "queued", job: ScanJob{ID: "a", Status: JobStatusQueued}},
		{name: "completed with result", job: ScanJob{ID: "a", Status: JobStatusCompleted, ResultID: "r"}},
		{name: "completed without result", job: ScanJob{ID: "a", Status: JobStatusCompleted}, wantErr: true},
		{name: "failed with result", job: ScanJob{ID: "a", Status: JobStatusFailed, ResultID: "r"}, wantErr: true},
		{name: "unknown status", job: ScanJob{ID: "a", Status: "paused"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.job.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestJobStatus(t *testing.T) {
	assert.True(t, JobStatusCompleted.IsTerminal())
	assert.True(t, JobStatusFailed.IsTerminal())
	assert.False(t, JobStatusRunning.IsTerminal())
	assert.False(t, JobStatus("").Valid())
	assert.True(t, JobStatusQueued.CanTransition(JobStatusRunning))
	assert.False(t, JobStatusQueued.CanTransition(JobStatusCompleted))
	assert.False(t, JobStatusCompleted.CanTransition(JobStatusRunning))
}

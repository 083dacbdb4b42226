package model

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeMemberID(t *testing.T) {
	assert.Equal(t, "12345", NormalizeMemberID("  12345\t"))
	assert.Equal(t, "", NormalizeMemberID("   "))
}

func TestNewJobIDIsUUID(t *testing.T) {
	id := NewJobID()
	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(4), parsed.Version())
	assert.NotEqual(t, id, NewJobID())
}

func TestCanAdvanceTo(t *testing.T) {
	tests := []struct {
		from, to JobStatus
		want     bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusCompleted, true},
		{StatusProcessing, StatusProcessing, true},
		{StatusProcessing, StatusFailed, true},
		{StatusProcessing, StatusPending, false},
		{StatusCompleted, StatusProcessing, false},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusCompleted, false},
		{StatusPending, JobStatus("bogus"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanAdvanceTo(tt.to))
		})
	}
}

func TestJobEncodeDecode(t *testing.T) {
	job := NewValidationJob("42", time.Now())
	raw, err := EncodeJob(job)
	require.NoError(t, err)

	got, err := DecodeJob(raw)
	require.NoError(t, err)
	assert.Equal(t, job.JobID, got.JobID)
	assert.Equal(t, StatusPending, got.Status)
	assert.True(t, job.CreatedAt.Equal(got.CreatedAt))
}

func TestDecodeJobFailsClosed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "not json", raw: "processing"},
		{name: "missing member", raw: `{"jobId":"6f1c1f3e-8f6b-4c53-9a4e-1d1b8f1f6a11","status":"pending","createdAt":"2026-01-01T00:00:00Z"}`},
		{name: "unknown status", raw: `{"jobId":"6f1c1f3e-8f6b-4c53-9a4e-1d1b8f1f6a11","memberId":"1","status":"done","createdAt":"2026-01-01T00:00:00Z"}`},
		{name: "bad job id", raw: `{"jobId":"abc","memberId":"1","status":"pending","createdAt":"2026-01-01T00:00:00Z"}`},
		{name: "failed without error", raw: `{"jobId":"6f1c1f3e-8f6b-4c53-9a4e-1d1b8f1f6a11","memberId":"1","status":"failed","createdAt":"2026-01-01T00:00:00Z"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeJob(tt.raw)
			assert.True(t, errors.Is(err, ErrMalformed), "got %v", err)
		})
	}
}

func TestDecodeResult(t *testing.T) {
	got, err := DecodeResult(`{"memberId":"12345","isValid":true,"membershipStatus":"Active","jobId":"j1","memberGrade":"Student Member"}`)
	require.NoError(t, err)
	assert.True(t, got.IsValid)
	assert.Equal(t, "Student Member", got.MemberGrade)

	_, err = DecodeResult(`{"isValid":true}`)
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestEncodeRejectsInvalid(t *testing.T) {
	_, err := EncodeResult(&ValidationResult{MemberID: "1"})
	assert.True(t, errors.Is(err, ErrMalformed))

	_, err = EncodeJob(&ValidationJob{JobID: NewJobID(), MemberID: "1", Status: "weird", CreatedAt: time.Now()})
	assert.True(t, errors.Is(err, ErrMalformed))
}

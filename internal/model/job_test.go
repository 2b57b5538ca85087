package model_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taskgrid/dispatch/internal/model"
)

func TestJob_CanTransitionTo(t *testing.T) {
	cases := []struct {
		from model.JobStatus
		to   model.JobStatus
		ok   bool
	}{
		{model.JobStatusPending, model.JobStatusProcessing, true},
		{model.JobStatusPending, model.JobStatusCompleted, false},
		{model.JobStatusProcessing, model.JobStatusCompleted, true},
		{model.JobStatusProcessing, model.JobStatusFailed, true},
		{model.JobStatusProcessing, model.JobStatusPending, false},
		{model.JobStatusFailed, model.JobStatusPending, false},
		{model.JobStatusCompleted, model.JobStatusProcessing, false},
	}

	for _, tc := range cases {
		j := &model.Job{Status: tc.from}
		require.Equal(t, tc.ok, j.CanTransitionTo(tc.to), "from %s to %s", tc.from, tc.to)
	}
}

func TestValidJobTypes(t *testing.T) {
	require.True(t, model.ValidJobTypes[model.JobTypeEmail])
	require.True(t, model.ValidJobTypes[model.JobTypeCronjob])
	require.False(t, model.ValidJobTypes[model.JobType("BOGUS")])
}

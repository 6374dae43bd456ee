package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completed(stages ...Stage) WorkflowStatus {
	var w WorkflowStatus
	for _, s := range stages {
		w.Set(s, CompletedRecord(time.Now(), string(s)+" done"))
	}
	return w
}

func TestCheckPrecursorsNamesFirstMissingStage(t *testing.T) {
	cases := []struct {
		name    string
		status  WorkflowStatus
		stage   Stage
		missing Stage
	}{
		{"farmer always legal", WorkflowStatus{}, StageFarmer, ""},
		{"lab needs farmer", WorkflowStatus{}, StageLabTechnician, StageFarmer},
		{"lab after farmer", completed(StageFarmer), StageLabTechnician, ""},
		{"processor needs lab", completed(StageFarmer), StageProcessor, StageLabTechnician},
		{"manager needs processor", completed(StageFarmer, StageLabTechnician), StageManager, StageProcessor},
		{"manager needs farmer first", completed(StageLabTechnician, StageProcessor), StageManager, StageFarmer},
		{"manager after all", completed(StageFarmer, StageLabTechnician, StageProcessor), StageManager, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.status.CheckPrecursors(tc.stage)
			if tc.missing == "" {
				require.NoError(t, err)
				return
			}
			var perr *PrecursorError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, tc.stage, perr.Stage)
			assert.Equal(t, tc.missing, perr.Missing)
			assert.Contains(t, err.Error(), string(tc.missing))
		})
	}
}

func TestIsPendingFor(t *testing.T) {
	fresh := completed(StageFarmer)
	assert.False(t, fresh.IsPendingFor(StageFarmer))
	assert.True(t, fresh.IsPendingFor(StageLabTechnician))
	assert.False(t, fresh.IsPendingFor(StageProcessor))
	assert.False(t, fresh.IsPendingFor(StageManager))

	assert.True(t, WorkflowStatus{}.IsPendingFor(StageFarmer))

	done := completed(Stages...)
	for _, s := range Stages {
		assert.False(t, done.IsPendingFor(s), s)
	}
}

func TestParseStageAcceptsRoleNames(t *testing.T) {
	for raw, want := range map[string]Stage{
		"farmer":         StageFarmer,
		"labTechnician":  StageLabTechnician,
		"lab_technician": StageLabTechnician,
		"processor":      StageProcessor,
		"supply_manager": StageManager,
		"Manager":        StageManager,
	} {
		got, err := ParseStage(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
	_, err := ParseStage("consumer")
	assert.Error(t, err)
}

func TestStageLotStatusNeverRegressesOnFarmer(t *testing.T) {
	assert.Equal(t, LotStatus(""), StageFarmer.LotStatus())
	assert.Equal(t, LotStatusTested, StageLabTechnician.LotStatus())
	assert.Equal(t, LotStatusProcessing, StageProcessor.LotStatus())
	assert.Equal(t, LotStatusPackaged, StageManager.LotStatus())
}

func TestWorkflowStatusRoundTripsThroughJSONB(t *testing.T) {
	orig := completed(StageFarmer, StageLabTechnician)
	raw, err := orig.Value()
	require.NoError(t, err)
	assert.Contains(t, string(raw.([]byte)), `"labTechnician":{"completed":true`)

	var scanned WorkflowStatus
	require.NoError(t, scanned.Scan(raw))
	assert.True(t, scanned.Completed(StageLabTechnician))
	assert.False(t, scanned.Completed(StageProcessor))
	assert.Equal(t, *orig.Farmer.Details, *scanned.Farmer.Details)

	require.NoError(t, scanned.Scan(nil))
	assert.Equal(t, WorkflowStatus{}, scanned)
	assert.Error(t, scanned.Scan(42))
}

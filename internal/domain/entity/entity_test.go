package entity

import (
	stderrors "errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hephaestus-forge/pkg/errors"
)

func TestDefaultGenerationRequest_Valid(t *testing.T) {
	req := DefaultGenerationRequest()
	require.NoError(t, req.Validate())
	assert.Equal(t, "a cute robot", req.Prompt)
	assert.Nil(t, req.Seed)
	assert.Equal(t, SamplerDDIM, req.Sampler)
}

func TestGenerationRequest_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *GenerationRequest)
		field  string
	}{
		{"blank prompt", func(r *GenerationRequest) { r.Prompt = "   " }, "prompt"},
		{"samples low", func(r *GenerationRequest) { r.Samples = 0 }, "samples"},
		{"samples high", func(r *GenerationRequest) { r.Samples = 5 }, "samples"},
		{"unknown sampler", func(r *GenerationRequest) { r.Sampler = "euler" }, "sampler"},
		{"steps low", func(r *GenerationRequest) { r.Steps = 9 }, "steps"},
		{"cfg high", func(r *GenerationRequest) { r.CFGScale = 15.5 }, "cfg_scale"},
		{"cfg NaN", func(r *GenerationRequest) { r.CFGScale = math.NaN() }, "cfg_scale"},
		{"cfg +Inf", func(r *GenerationRequest) { r.CFGScale = math.Inf(1) }, "cfg_scale"},
		{"mcubes high", func(r *GenerationRequest) { r.MCubesRes = 512 }, "mcubes_res"},
		{"render low", func(r *GenerationRequest) { r.RenderRes = 32 }, "render_res"},
		{"refine mode", func(r *GenerationRequest) { r.Refine = true; r.RefineMode = "nope" }, "refine_mode"},
		{"refine iters", func(r *GenerationRequest) { r.Refine = true; r.RefineIters = 50 }, "refine_iters"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := DefaultGenerationRequest()
			tt.mutate(&req)
			err := req.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrInvalidParam))
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestGenerationRequest_BoundsInclusive(t *testing.T) {
	req := DefaultGenerationRequest()
	req.Samples = MaxSamples
	req.Steps = MinSteps
	req.CFGScale = MaxCFGScale
	req.MCubesRes = MinResolution
	req.RenderRes = MaxResolution
	assert.NoError(t, req.Validate())
}

func TestGenerationRequest_RefineFieldsIgnoredWhenDisabled(t *testing.T) {
	req := DefaultGenerationRequest()
	req.RefineMode = "bogus"
	req.RefineIters = 0
	assert.NoError(t, req.Validate())
}

func TestGenerationSession_Lifecycle(t *testing.T) {
	s := NewGenerationSession("s-1", DefaultGenerationRequest(), "python main.py")
	assert.True(t, s.InFlight())
	assert.Equal(t, StepInitializing, *s.Step)
	assert.Equal(t, "Command: python main.py\n\n", s.Transcript())

	assert.True(t, s.AdvanceProgress(0.6))
	assert.False(t, s.AdvanceProgress(0.6))
	assert.False(t, s.AdvanceProgress(0.3))
	assert.Equal(t, 0.6, s.Progress)

	s.AddOutputFile("a.ply")
	s.AddOutputFile("a.ply")
	s.Complete(3)

	snap := s.Snapshot()
	assert.False(t, snap.InFlight)
	assert.Equal(t, SessionStatusCompleted, snap.Status)
	assert.Equal(t, 1.0, snap.Progress)
	assert.Equal(t, StepComplete, *snap.Step)
	require.NotNil(t, snap.ExitCode)
	assert.Equal(t, 3, *snap.ExitCode)
	assert.Equal(t, []string{"a.ply", "a.ply"}, snap.OutputFiles)
	assert.True(t, snap.Status.Terminal())
	assert.NotNil(t, snap.FinishedAt)
}

func TestGenerationSession_FailKeepsProgress(t *testing.T) {
	s := NewGenerationSession("s-2", DefaultGenerationRequest(), "cmd")
	s.AdvanceProgress(0.8)
	s.Fail(stderrors.New("Generation cancelled by user"))

	snap := s.Snapshot()
	assert.Equal(t, SessionStatusFailed, snap.Status)
	assert.Equal(t, 0.8, snap.Progress)
	assert.Equal(t, "Generation cancelled by user", snap.Error)
	assert.Contains(t, snap.Transcript, "\nError: Generation cancelled by user\n")
	assert.Nil(t, snap.ExitCode)
}

func TestGenerationSession_SnapshotIsCopy(t *testing.T) {
	s := NewGenerationSession("s-3", DefaultGenerationRequest(), "cmd")
	s.AddOutputFile("x.obj")
	snap := s.Snapshot()

	snap.OutputFiles[0] = "changed"
	*snap.Step = "changed"
	assert.Equal(t, "x.obj", s.OutputFiles[0])
	assert.Equal(t, StepInitializing, *s.Step)
}

func TestIdleSnapshot(t *testing.T) {
	var s *GenerationSession
	snap := s.Snapshot()
	assert.Equal(t, SessionStatusIdle, snap.Status)
	assert.False(t, snap.InFlight)
	assert.NotNil(t, snap.OutputFiles)
	assert.False(t, snap.HasOutputFile(""))
}

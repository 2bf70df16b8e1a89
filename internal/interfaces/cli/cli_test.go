package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hephaestus-forge/internal/application/forge"
	"hephaestus-forge/internal/domain/entity"
	pkgerrors "hephaestus-forge/pkg/errors"
)

type stubDriver struct {
	inputs     []string
	selectIdx  []int
	confirm    []bool
	messages   []string
	infos      []string
	inputPos   int
	selectPos  int
	confirmPos int
}

func (s *stubDriver) Input(_ context.Context, cfg InputConfig) (string, error) {
	s.messages = append(s.messages, cfg.Message)
	if s.inputPos >= len(s.inputs) {
		return cfg.Default, nil
	}
	val := s.inputs[s.inputPos]
	s.inputPos++
	if cfg.Validator != nil {
		if err := cfg.Validator(val); err != nil {
			return "", err
		}
	}
	return val, nil
}

func (s *stubDriver) Confirm(_ context.Context, cfg ConfirmConfig) (bool, error) {
	s.messages = append(s.messages, cfg.Message)
	if s.confirmPos >= len(s.confirm) {
		return cfg.Default, nil
	}
	val := s.confirm[s.confirmPos]
	s.confirmPos++
	return val, nil
}

func (s *stubDriver) Select(_ context.Context, cfg SelectConfig) (int, error) {
	s.messages = append(s.messages, cfg.Message)
	if s.selectPos >= len(s.selectIdx) {
		return cfg.DefaultIndex, nil
	}
	val := s.selectIdx[s.selectPos]
	s.selectPos++
	return val, nil
}

func (s *stubDriver) Info(_ context.Context, msg string) error {
	s.infos = append(s.infos, msg)
	return nil
}

func TestFillForm_DefaultsSkipHiddenFields(t *testing.T) {
	driver := &stubDriver{}
	req, err := FillForm(context.Background(), driver, entity.DefaultGenerationRequest())
	require.NoError(t, err)

	assert.Equal(t, entity.DefaultGenerationRequest(), req)
	assert.NotContains(t, driver.messages, "Refinement Mode")
	assert.NotContains(t, driver.messages, "Refinement Iterations")
	assert.Equal(t, "Prompt", driver.messages[0])
	assert.Contains(t, driver.infos, "== Sampling Settings ==")
}

func TestFillForm_RefinementFieldsFollowToggle(t *testing.T) {
	driver := &stubDriver{
		// prompt, samples, seed, steps, cfg_scale, mcubes_res, render_res, refine_iters
		inputs:    []string{"a wooden chair", "2", "42", "100", "9", "256", "128", "500"},
		selectIdx: []int{2, 1},
		// generate_video, refine, skip_mesh
		confirm: []bool{false, true, false},
	}
	req, err := FillForm(context.Background(), driver, entity.DefaultGenerationRequest())
	require.NoError(t, err)

	assert.Equal(t, "a wooden chair", req.Prompt)
	assert.Equal(t, 2, req.Samples)
	require.NotNil(t, req.Seed)
	assert.Equal(t, int64(42), *req.Seed)
	assert.Equal(t, entity.SamplerDPMSolver, req.Sampler)
	assert.Equal(t, 9.0, req.CFGScale)
	assert.Equal(t, 256, req.MCubesRes)
	assert.False(t, req.GenerateVideo)
	assert.True(t, req.Refine)
	assert.Equal(t, entity.RefineModeSD, req.RefineMode)
	assert.Equal(t, 500, req.RefineIters)
	assert.Contains(t, driver.messages, "Refinement Mode")
}

func TestFillForm_Aborted(t *testing.T) {
	driver := &abortingDriver{}
	_, err := FillForm(context.Background(), driver, entity.DefaultGenerationRequest())
	assert.ErrorIs(t, err, ErrAborted)
}

type abortingDriver struct{ stubDriver }

func (d *abortingDriver) Input(context.Context, InputConfig) (string, error) {
	return "", ErrAborted
}

func TestFieldValidator(t *testing.T) {
	fields := map[string]forge.FieldSpec{}
	for _, f := range forge.Form() {
		fields[f.Name] = f
	}

	steps := fieldValidator(fields[forge.FieldNameSteps])
	assert.NoError(t, steps("50"))
	assert.Error(t, steps("5"))
	assert.Error(t, steps("1000"))
	assert.Error(t, steps("many"))

	seed := fieldValidator(fields[forge.FieldNameSeed])
	assert.NoError(t, seed(""))
	assert.NoError(t, seed("-7"))
	assert.Error(t, seed("1.5"))

	prompt := fieldValidator(fields[forge.FieldNamePrompt])
	assert.Error(t, prompt("   "))
	assert.NoError(t, prompt("a vase"))

	cfg := fieldValidator(fields[forge.FieldNameCFGScale])
	assert.NoError(t, cfg("7.5"))
	assert.Error(t, cfg("0.5"))
}

func TestFormFlags_ApplyOnlyChanged(t *testing.T) {
	fs := pflag.NewFlagSet("forge", pflag.ContinueOnError)
	flags := RegisterFormFlags(fs)
	require.NoError(t, fs.Parse([]string{
		"--prompt", "a stone golem",
		"--cfg-scale", "9",
		"--refine",
		"--refine-mode", "sd_fixgeo",
		"--seed", "123",
	}))

	req := entity.DefaultGenerationRequest()
	require.NoError(t, flags.Apply(&req))

	assert.Equal(t, "a stone golem", req.Prompt)
	assert.Equal(t, 9.0, req.CFGScale)
	assert.True(t, req.Refine)
	assert.Equal(t, entity.RefineMode("sd_fixgeo"), req.RefineMode)
	require.NotNil(t, req.Seed)
	assert.Equal(t, int64(123), *req.Seed)
	assert.Equal(t, 200, req.Steps)
	assert.True(t, req.GenerateVideo)
}

func TestFormFlags_InvalidValue(t *testing.T) {
	fs := pflag.NewFlagSet("forge", pflag.ContinueOnError)
	flags := RegisterFormFlags(fs)
	require.NoError(t, fs.Parse([]string{"--steps", "lots"}))

	req := entity.DefaultGenerationRequest()
	err := flags.Apply(&req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--steps")
}

type scriptedGenerator struct {
	events chan forge.Event
	script []forge.Event
	final  entity.SessionSnapshot
	submit error
}

func (g *scriptedGenerator) Submit(ctx context.Context, req entity.GenerationRequest) (entity.SessionSnapshot, error) {
	if g.submit != nil {
		return entity.SessionSnapshot{}, g.submit
	}
	started := entity.NewGenerationSession("s-1", req, "python -u sample_stage1.py").Snapshot()
	g.events <- forge.Event{Type: forge.EventSnapshot, SessionID: started.ID, Snapshot: &started}
	for _, ev := range g.script {
		g.events <- ev
	}
	return started, nil
}

func (g *scriptedGenerator) Snapshot(context.Context) (entity.SessionSnapshot, error) {
	return g.final, nil
}

func (g *scriptedGenerator) Cancel(context.Context) (entity.SessionSnapshot, error) {
	return g.final, nil
}

func (g *scriptedGenerator) Wait(context.Context, string) (entity.SessionSnapshot, error) {
	return g.final, nil
}

func (g *scriptedGenerator) Subscribe(context.Context) (<-chan forge.Event, func(), error) {
	idle := entity.IdleSnapshot()
	g.events <- forge.Event{Type: forge.EventSnapshot, Snapshot: &idle}
	return g.events, func() {}, nil
}

func TestRun_PrintsTranscriptAndSummary(t *testing.T) {
	code := 0
	final := entity.SessionSnapshot{
		ID:          "s-1",
		Status:      entity.SessionStatusCompleted,
		Progress:    1,
		ExitCode:    &code,
		OutputFiles: []string{"results/default/stage1/a.ply"},
	}
	gen := &scriptedGenerator{
		events: make(chan forge.Event, 16),
		final:  final,
		script: []forge.Event{
			{Type: forge.EventLog, SessionID: "stale", Text: "from another session\n"},
			{Type: forge.EventLog, SessionID: "s-1", Text: "running marching cubes\n"},
			{Type: forge.EventState, SessionID: "s-1", Progress: 0.6, Step: entity.StepExtracting},
			{Type: forge.EventFile, SessionID: "s-1", File: "results/default/stage1/a.ply"},
			{Type: forge.EventDone, SessionID: "s-1", Progress: 1, Snapshot: &final},
		},
	}

	var out, status bytes.Buffer
	snap, err := Run(context.Background(), gen, entity.DefaultGenerationRequest(), NewPrinter(&out, &status))
	require.NoError(t, err)
	assert.Equal(t, entity.SessionStatusCompleted, snap.Status)

	assert.Contains(t, out.String(), "Command: python -u sample_stage1.py")
	assert.Contains(t, out.String(), "running marching cubes")
	assert.NotContains(t, out.String(), "from another session")
	assert.Contains(t, status.String(), "[ 60%] Extracting mesh...")
	assert.Contains(t, status.String(), "  -> results/default/stage1/a.ply")
	assert.Contains(t, status.String(), "Output files:")
	assert.Contains(t, status.String(), "exit code 0")
}

func TestRun_SubmitError(t *testing.T) {
	gen := &scriptedGenerator{
		events: make(chan forge.Event, 4),
		submit: pkgerrors.ErrGenerationInFlight,
	}
	var out, status bytes.Buffer
	_, err := Run(context.Background(), gen, entity.DefaultGenerationRequest(), NewPrinter(&out, &status))
	assert.True(t, errors.Is(err, pkgerrors.ErrGenerationInFlight))
}

func TestPrinter_FailedSummary(t *testing.T) {
	var out, status bytes.Buffer
	p := NewPrinter(&out, &status)
	p.Summary(entity.SessionSnapshot{Status: entity.SessionStatusFailed, Error: "boom", OutputFiles: []string{}})
	assert.Equal(t, "generation failed: boom\n", status.String())
}

// Package entity 定义领域实体
package entity

import (
	"fmt"
	"strings"

	"hephaestus-forge/pkg/errors"
)

// Sampler 扩散采样器
type Sampler string

const (
	SamplerDDIM      Sampler = "ddim"
	SamplerPLMS      Sampler = "plms"
	SamplerDPMSolver Sampler = "dpm_solver"
)

// Samplers 按展示顺序列出可选采样器
var Samplers = []Sampler{SamplerDDIM, SamplerPLMS, SamplerDPMSolver}

// Valid 检查采样器是否受支持
func (s Sampler) Valid() bool {
	for _, v := range Samplers {
		if v == s {
			return true
		}
	}
	return false
}

// RefineMode 网格精修模式
type RefineMode string

const (
	RefineModeIF2       RefineMode = "if2"
	RefineModeSD        RefineMode = "sd"
	RefineModeIF        RefineMode = "if"
	RefineModeIF2FixGeo RefineMode = "if2_fixgeo"
	RefineModeSDFixGeo  RefineMode = "sd_fixgeo"
	RefineModeIFFixGeo  RefineMode = "if_fixgeo"
)

// RefineModes 按展示顺序列出精修模式
var RefineModes = []RefineMode{
	RefineModeIF2,
	RefineModeSD,
	RefineModeIF,
	RefineModeIF2FixGeo,
	RefineModeSDFixGeo,
	RefineModeIFFixGeo,
}

// Valid 检查精修模式是否受支持
func (m RefineMode) Valid() bool {
	for _, v := range RefineModes {
		if v == m {
			return true
		}
	}
	return false
}

// 参数边界（闭区间）
const (
	MinSamples     = 1
	MaxSamples     = 4
	MinSteps       = 10
	MaxSteps       = 1000
	MinCFGScale    = 1.0
	MaxCFGScale    = 15.0
	MinResolution  = 64
	MaxResolution  = 256
	MinRefineIters = 100
	MaxRefineIters = 2000
)

// GenerationRequest 一次生成的参数快照
type GenerationRequest struct {
	Prompt        string     `json:"prompt" yaml:"prompt"`
	Samples       int        `json:"samples" yaml:"samples"`
	Seed          *int64     `json:"seed,omitempty" yaml:"seed,omitempty"`
	Sampler       Sampler    `json:"sampler" yaml:"sampler"`
	Steps         int        `json:"steps" yaml:"steps"`
	CFGScale      float64    `json:"cfg_scale" yaml:"cfg_scale"`
	MCubesRes     int        `json:"mcubes_res" yaml:"mcubes_res"`
	RenderRes     int        `json:"render_res" yaml:"render_res"`
	GenerateVideo bool       `json:"generate_video" yaml:"generate_video"`
	SkipMesh      bool       `json:"skip_mesh" yaml:"skip_mesh"`
	Refine        bool       `json:"refine" yaml:"refine"`
	RefineMode    RefineMode `json:"refine_mode,omitempty" yaml:"refine_mode,omitempty"`
	RefineIters   int        `json:"refine_iters,omitempty" yaml:"refine_iters,omitempty"`
}

// DefaultGenerationRequest 返回表单默认值
func DefaultGenerationRequest() GenerationRequest {
	return GenerationRequest{
		Prompt:        "a cute robot",
		Samples:       1,
		Sampler:       SamplerDDIM,
		Steps:         200,
		CFGScale:      7.5,
		MCubesRes:     128,
		RenderRes:     128,
		GenerateVideo: true,
		SkipMesh:      false,
		Refine:        false,
		RefineMode:    RefineModeIF2,
		RefineIters:   1000,
	}
}

// Validate 校验参数，返回首个不合法字段
func (r GenerationRequest) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return invalid("prompt", "prompt must not be empty")
	}
	if r.Samples < MinSamples || r.Samples > MaxSamples {
		return invalid("samples", fmt.Sprintf("samples must be in [%d, %d]", MinSamples, MaxSamples))
	}
	if !r.Sampler.Valid() {
		return invalid("sampler", fmt.Sprintf("unknown sampler %q", r.Sampler))
	}
	if r.Steps < MinSteps || r.Steps > MaxSteps {
		return invalid("steps", fmt.Sprintf("steps must be in [%d, %d]", MinSteps, MaxSteps))
	}
	// NaN 与任何值比较都为 false，需用取反形式
	if !(r.CFGScale >= MinCFGScale && r.CFGScale <= MaxCFGScale) {
		return invalid("cfg_scale", fmt.Sprintf("cfg_scale must be in [%.1f, %.1f]", MinCFGScale, MaxCFGScale))
	}
	if r.MCubesRes < MinResolution || r.MCubesRes > MaxResolution {
		return invalid("mcubes_res", fmt.Sprintf("mcubes_res must be in [%d, %d]", MinResolution, MaxResolution))
	}
	if r.RenderRes < MinResolution || r.RenderRes > MaxResolution {
		return invalid("render_res", fmt.Sprintf("render_res must be in [%d, %d]", MinResolution, MaxResolution))
	}
	if r.Refine {
		if !r.RefineMode.Valid() {
			return invalid("refine_mode", fmt.Sprintf("unknown refine mode %q", r.RefineMode))
		}
		if r.RefineIters < MinRefineIters || r.RefineIters > MaxRefineIters {
			return invalid("refine_iters", fmt.Sprintf("refine_iters must be in [%d, %d]", MinRefineIters, MaxRefineIters))
		}
	}
	return nil
}

func invalid(field, detail string) error {
	return errors.New(errors.CodeInvalidParam, "invalid "+field).WithDetail(detail)
}

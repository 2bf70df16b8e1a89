package forge

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"hephaestus-forge/internal/domain/entity"
	"hephaestus-forge/pkg/errors"
)

// FieldKind 表单字段类型
type FieldKind string

const (
	FieldText        FieldKind = "text"
	FieldInt         FieldKind = "int"
	FieldFloat       FieldKind = "float"
	FieldBool        FieldKind = "bool"
	FieldChoice      FieldKind = "choice"
	FieldOptionalInt FieldKind = "optional_int"
)

// 表单字段名，与 GenerationRequest 的 JSON 字段一致
const (
	FieldNamePrompt        = "prompt"
	FieldNameSamples       = "samples"
	FieldNameSeed          = "seed"
	FieldNameSampler       = "sampler"
	FieldNameSteps         = "steps"
	FieldNameCFGScale      = "cfg_scale"
	FieldNameMCubesRes     = "mcubes_res"
	FieldNameRenderRes     = "render_res"
	FieldNameGenerateVideo = "generate_video"
	FieldNameRefine        = "refine"
	FieldNameRefineMode    = "refine_mode"
	FieldNameRefineIters   = "refine_iters"
	FieldNameSkipMesh      = "skip_mesh"
)

// ChoiceOption 可选值及其说明
type ChoiceOption struct {
	Value       string `json:"value"`
	Description string `json:"description"`
}

// FieldSpec 单个表单字段的描述
type FieldSpec struct {
	Name        string         `json:"name"`
	Group       string         `json:"group"`
	Label       string         `json:"label"`
	Kind        FieldKind      `json:"kind"`
	Min         *float64       `json:"min,omitempty"`
	Max         *float64       `json:"max,omitempty"`
	Step        *float64       `json:"step,omitempty"`
	Options     []ChoiceOption `json:"options,omitempty"`
	Default     any            `json:"default"`
	Description string         `json:"description"`
	// VisibleWhen 非空时，仅当该布尔字段为 true 时显示
	VisibleWhen string `json:"visible_when,omitempty"`
}

// Visible 判断字段在当前参数下是否可见
func (f FieldSpec) Visible(req entity.GenerationRequest) bool {
	if f.VisibleWhen == "" {
		return true
	}
	v, err := FieldValue(req, f.VisibleWhen)
	return err == nil && v == "true"
}

func num(v float64) *float64 { return &v }

// Form 按展示顺序返回全部表单字段
func Form() []FieldSpec {
	d := entity.DefaultGenerationRequest()

	samplers := []ChoiceOption{
		{Value: string(entity.SamplerDDIM), Description: "DDIM - Fast and efficient, recommended for most cases"},
		{Value: string(entity.SamplerPLMS), Description: "PLMS - Pseudo Linear Multistep, good balance"},
		{Value: string(entity.SamplerDPMSolver), Description: "DPM Solver - Advanced solver for high quality"},
	}
	refineModes := []ChoiceOption{
		{Value: string(entity.RefineModeIF2), Description: "Deepfloyd-IF-II - Best quality, handles geometry and texture"},
		{Value: string(entity.RefineModeSD), Description: "Stable Diffusion - Good for texture refinement"},
		{Value: string(entity.RefineModeIF), Description: "Deepfloyd-IF - Alternative refinement method"},
		{Value: string(entity.RefineModeIF2FixGeo), Description: "IF2 + Geometry Fix - Fixes geometry while refining"},
		{Value: string(entity.RefineModeSDFixGeo), Description: "SD + Geometry Fix - SD with geometry improvements"},
		{Value: string(entity.RefineModeIFFixGeo), Description: "IF + Geometry Fix - IF with geometry improvements"},
	}

	return []FieldSpec{
		{
			Name: FieldNamePrompt, Group: "Text Prompt", Label: "Prompt", Kind: FieldText,
			Default:     d.Prompt,
			Description: "Describe the 3D object you want to create. Be creative and specific!",
		},
		{
			Name: FieldNameSamples, Group: "Generation Settings", Label: "Number of Variations", Kind: FieldInt,
			Min: num(entity.MinSamples), Max: num(entity.MaxSamples), Step: num(1),
			Default:     d.Samples,
			Description: "Generate multiple variations to choose from. More samples = more options but longer generation time.",
		},
		{
			Name: FieldNameSeed, Group: "Generation Settings", Label: "Random Seed", Kind: FieldOptionalInt,
			Default:     nil,
			Description: "Control randomness for reproducible results. Leave empty for random generation each time.",
		},
		{
			Name: FieldNameSampler, Group: "Sampling Settings", Label: "Sampler Algorithm", Kind: FieldChoice,
			Options:     samplers,
			Default:     string(d.Sampler),
			Description: "Different algorithms for the diffusion process. DDIM is fastest, DPM Solver is highest quality.",
		},
		{
			Name: FieldNameSteps, Group: "Sampling Settings", Label: "Sampling Steps", Kind: FieldInt,
			Min: num(entity.MinSteps), Max: num(entity.MaxSteps), Step: num(10),
			Default:     d.Steps,
			Description: "More steps = higher quality but slower generation. 50-200 is usually sufficient.",
		},
		{
			Name: FieldNameCFGScale, Group: "Sampling Settings", Label: "Guidance Scale", Kind: FieldFloat,
			Min: num(entity.MinCFGScale), Max: num(entity.MaxCFGScale), Step: num(0.5),
			Default:     d.CFGScale,
			Description: "How closely to follow your prompt. Higher = more adherence but may reduce creativity. 7.5 is recommended.",
		},
		{
			Name: FieldNameMCubesRes, Group: "Mesh Settings", Label: "Mesh Resolution", Kind: FieldInt,
			Min: num(entity.MinResolution), Max: num(entity.MaxResolution), Step: num(32),
			Default:     d.MCubesRes,
			Description: "Higher resolution = more detailed mesh but uses more memory. 128 is a good balance.",
		},
		{
			Name: FieldNameRenderRes, Group: "Mesh Settings", Label: "Video Resolution", Kind: FieldInt,
			Min: num(entity.MinResolution), Max: num(entity.MaxResolution), Step: num(32),
			Default:     d.RenderRes,
			Description: "Resolution for rotation videos. Higher = better quality but larger files.",
		},
		{
			Name: FieldNameGenerateVideo, Group: "Mesh Settings", Label: "Generate Rotation Video", Kind: FieldBool,
			Default:     d.GenerateVideo,
			Description: "Create an MP4 video showing your model rotating 360°",
		},
		{
			Name: FieldNameRefine, Group: "Refinement", Label: "Enable Refinement", Kind: FieldBool,
			Default:     d.Refine,
			Description: "Refine the extracted mesh for production-ready quality.",
		},
		{
			Name: FieldNameRefineMode, Group: "Refinement", Label: "Refinement Mode", Kind: FieldChoice,
			Options:     refineModes,
			Default:     string(d.RefineMode),
			Description: "Refinement backend. Geometry-fix variants also repair the mesh.",
			VisibleWhen: FieldNameRefine,
		},
		{
			Name: FieldNameRefineIters, Group: "Refinement", Label: "Refinement Iterations", Kind: FieldInt,
			Min: num(entity.MinRefineIters), Max: num(entity.MaxRefineIters), Step: num(100),
			Default:     d.RefineIters,
			Description: "More iterations = better quality but longer refinement time. 1000 is recommended for high quality.",
			VisibleWhen: FieldNameRefine,
		},
		{
			Name: FieldNameSkipMesh, Group: "Advanced", Label: "Skip Mesh Generation", Kind: FieldBool,
			Default:     d.SkipMesh,
			Description: "Only generate the latent representation, skip mesh extraction (for testing)",
		},
	}
}

// FieldValue 以字符串形式读取字段当前值；未设置的种子返回空串
func FieldValue(req entity.GenerationRequest, name string) (string, error) {
	switch name {
	case FieldNamePrompt:
		return req.Prompt, nil
	case FieldNameSamples:
		return strconv.Itoa(req.Samples), nil
	case FieldNameSeed:
		if req.Seed == nil {
			return "", nil
		}
		return strconv.FormatInt(*req.Seed, 10), nil
	case FieldNameSampler:
		return string(req.Sampler), nil
	case FieldNameSteps:
		return strconv.Itoa(req.Steps), nil
	case FieldNameCFGScale:
		return formatScale(req.CFGScale), nil
	case FieldNameMCubesRes:
		return strconv.Itoa(req.MCubesRes), nil
	case FieldNameRenderRes:
		return strconv.Itoa(req.RenderRes), nil
	case FieldNameGenerateVideo:
		return strconv.FormatBool(req.GenerateVideo), nil
	case FieldNameRefine:
		return strconv.FormatBool(req.Refine), nil
	case FieldNameRefineMode:
		return string(req.RefineMode), nil
	case FieldNameRefineIters:
		return strconv.Itoa(req.RefineIters), nil
	case FieldNameSkipMesh:
		return strconv.FormatBool(req.SkipMesh), nil
	}
	return "", unknownField(name)
}

// SetField 将字符串输入写入对应字段；只做类型转换，边界由 Validate 检查
func SetField(req *entity.GenerationRequest, name, raw string) error {
	raw = strings.TrimSpace(raw)
	var err error
	switch name {
	case FieldNamePrompt:
		req.Prompt = raw
	case FieldNameSamples:
		req.Samples, err = strconv.Atoi(raw)
	case FieldNameSeed:
		if raw == "" {
			req.Seed = nil
			return nil
		}
		var seed int64
		if seed, err = strconv.ParseInt(raw, 10, 64); err == nil {
			req.Seed = &seed
		}
	case FieldNameSampler:
		req.Sampler = entity.Sampler(raw)
	case FieldNameSteps:
		req.Steps, err = strconv.Atoi(raw)
	case FieldNameCFGScale:
		req.CFGScale, err = strconv.ParseFloat(raw, 64)
	case FieldNameMCubesRes:
		req.MCubesRes, err = strconv.Atoi(raw)
	case FieldNameRenderRes:
		req.RenderRes, err = strconv.Atoi(raw)
	case FieldNameGenerateVideo:
		req.GenerateVideo, err = strconv.ParseBool(raw)
	case FieldNameRefine:
		req.Refine, err = strconv.ParseBool(raw)
	case FieldNameRefineMode:
		req.RefineMode = entity.RefineMode(raw)
	case FieldNameRefineIters:
		req.RefineIters, err = strconv.Atoi(raw)
	case FieldNameSkipMesh:
		req.SkipMesh, err = strconv.ParseBool(raw)
	default:
		return unknownField(name)
	}
	if err != nil {
		return errors.Wrap(err, errors.CodeInvalidParam, "invalid "+name).WithDetail(fmt.Sprintf("cannot parse %q", raw))
	}
	return nil
}

// LoadPreset 读取 YAML 预设，未出现的字段保持默认值
func LoadPreset(path string) (entity.GenerationRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return entity.GenerationRequest{}, fmt.Errorf("read preset: %w", err)
	}
	return ParsePreset(data)
}

// ParsePreset 解析 YAML 预设并校验
func ParsePreset(data []byte) (entity.GenerationRequest, error) {
	req := entity.DefaultGenerationRequest()
	if err := yaml.Unmarshal(data, &req); err != nil {
		return entity.GenerationRequest{}, errors.Wrap(err, errors.CodeInvalidParam, "invalid preset")
	}
	if err := req.Validate(); err != nil {
		return entity.GenerationRequest{}, err
	}
	return req, nil
}

func unknownField(name string) error {
	return errors.New(errors.CodeInvalidParam, "unknown field").WithDetail(name)
}

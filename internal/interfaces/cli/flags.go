package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"hephaestus-forge/internal/application/forge"
	"hephaestus-forge/internal/domain/entity"
)

// FlagName 表单字段对应的命令行标志名：cfg_scale -> cfg-scale
func FlagName(field string) string {
	return strings.ReplaceAll(field, "_", "-")
}

// FormFlags 由表单描述生成的参数标志
type FormFlags struct {
	fs *pflag.FlagSet
}

// RegisterFormFlags 为每个表单字段注册一个标志
func RegisterFormFlags(fs *pflag.FlagSet) *FormFlags {
	d := entity.DefaultGenerationRequest()
	for _, field := range forge.Form() {
		name := FlagName(field.Name)
		def, _ := forge.FieldValue(d, field.Name)
		usage := field.Description
		if len(field.Options) > 0 {
			values := make([]string, len(field.Options))
			for i, opt := range field.Options {
				values[i] = opt.Value
			}
			usage = fmt.Sprintf("%s (%s)", usage, strings.Join(values, ", "))
		}
		if field.Kind == forge.FieldBool {
			fs.Bool(name, def == "true", usage)
			continue
		}
		fs.String(name, def, usage)
	}
	return &FormFlags{fs: fs}
}

// Apply 将显式设置过的标志写入 req，未设置的字段保持原值
func (f *FormFlags) Apply(req *entity.GenerationRequest) error {
	for _, field := range forge.Form() {
		flag := f.fs.Lookup(FlagName(field.Name))
		if flag == nil || !flag.Changed {
			continue
		}
		if err := forge.SetField(req, field.Name, flag.Value.String()); err != nil {
			return fmt.Errorf("--%s: %w", flag.Name, err)
		}
	}
	return nil
}

package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"hephaestus-forge/internal/application/forge"
	"hephaestus-forge/internal/domain/entity"
)

// FillForm 按表单顺序逐项提示，以 req 的当前值为默认值
//
// 依赖开关的字段（如 refine_mode）在开关关闭时跳过。
func FillForm(ctx context.Context, driver PromptDriver, req entity.GenerationRequest) (entity.GenerationRequest, error) {
	group := ""
	for _, field := range forge.Form() {
		if !field.Visible(req) {
			continue
		}
		if field.Group != group {
			group = field.Group
			if err := driver.Info(ctx, "== "+group+" =="); err != nil {
				return req, err
			}
		}
		if err := promptField(ctx, driver, field, &req); err != nil {
			return req, fmt.Errorf("%s: %w", field.Name, err)
		}
	}
	return req, req.Validate()
}

func promptField(ctx context.Context, driver PromptDriver, field forge.FieldSpec, req *entity.GenerationRequest) error {
	current, err := forge.FieldValue(*req, field.Name)
	if err != nil {
		return err
	}

	switch field.Kind {
	case forge.FieldBool:
		v, err := driver.Confirm(ctx, ConfirmConfig{
			Message: field.Label,
			Default: current == "true",
			Help:    field.Description,
		})
		if err != nil {
			return err
		}
		return forge.SetField(req, field.Name, strconv.FormatBool(v))

	case forge.FieldChoice:
		options := make([]string, len(field.Options))
		def := 0
		for i, opt := range field.Options {
			options[i] = opt.Description
			if opt.Value == current {
				def = i
			}
		}
		idx, err := driver.Select(ctx, SelectConfig{
			Message:      field.Label,
			Options:      options,
			DefaultIndex: def,
			Help:         field.Description,
		})
		if err != nil {
			return err
		}
		if idx < 0 || idx >= len(field.Options) {
			return fmt.Errorf("selection %d out of range", idx)
		}
		return forge.SetField(req, field.Name, field.Options[idx].Value)

	default:
		raw, err := driver.Input(ctx, InputConfig{
			Message:   field.Label,
			Default:   current,
			Help:      field.Description,
			Validator: fieldValidator(field),
		})
		if err != nil {
			return err
		}
		return forge.SetField(req, field.Name, raw)
	}
}

// fieldValidator 检查类型与取值范围
func fieldValidator(field forge.FieldSpec) func(string) error {
	return func(raw string) error {
		probe := entity.DefaultGenerationRequest()
		if err := forge.SetField(&probe, field.Name, raw); err != nil {
			return err
		}
		if field.Kind == forge.FieldText && strings.TrimSpace(raw) == "" {
			return fmt.Errorf("%s must not be empty", field.Label)
		}
		if field.Min == nil && field.Max == nil {
			return nil
		}
		if raw == "" {
			return nil
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}
		if field.Min != nil && v < *field.Min {
			return fmt.Errorf("%s must be at least %g", field.Label, *field.Min)
		}
		if field.Max != nil && v > *field.Max {
			return fmt.Errorf("%s must be at most %g", field.Label, *field.Max)
		}
		return nil
	}
}

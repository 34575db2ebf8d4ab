// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package plan

import (
	"errors"
	"fmt"

	"github.com/goccy/go-yaml"
)

type yamlTarget struct {
	Name    string `yaml:"name"`
	Host    string `yaml:"host"`
	User    string `yaml:"user"`
	Workdir string `yaml:"workdir"`
}

type yamlOperation struct {
	Label         string   `yaml:"label"`
	Command       string   `yaml:"command"`
	Timeout       any      `yaml:"timeout"`
	StopOnFailure *bool    `yaml:"stop_on_failure"`
	Targets       []string `yaml:"targets"`
}

type yamlPlan struct {
	Name          string          `yaml:"name"`
	Description   string          `yaml:"description"`
	Wait          any             `yaml:"wait"`
	Timeout       any             `yaml:"timeout"`
	StopOnFailure bool            `yaml:"stop_on_failure"`
	Targets       []yamlTarget    `yaml:"targets"`
	Operations    []yamlOperation `yaml:"operations"`
}

// DecodeYAML decodes a YAML plan file. Unknown fields are rejected.
func DecodeYAML(content []byte) (*Spec, error) {
	var yp yamlPlan

	if err := yaml.UnmarshalWithOptions(content, &yp, yaml.DisallowUnknownField()); err != nil {
		return nil, errors.Join(ErrDecodePlan, errors.New(yaml.FormatError(err, false, true)))
	}

	spec := &Spec{
		Name:          yp.Name,
		Description:   yp.Description,
		Wait:          scalar(yp.Wait),
		Timeout:       scalar(yp.Timeout),
		StopOnFailure: yp.StopOnFailure,
	}

	for _, t := range yp.Targets {
		spec.Targets = append(spec.Targets, TargetSpec(t))
	}

	for _, o := range yp.Operations {
		spec.Operations = append(spec.Operations, OperationSpec{
			Label:         o.Label,
			Command:       o.Command,
			Timeout:       scalar(o.Timeout),
			StopOnFailure: o.StopOnFailure,
			Targets:       o.Targets,
		})
	}

	return spec, nil
}

// scalar renders a YAML scalar that may be a number or a string.
func scalar(v any) string {
	if v == nil {
		return ""
	}

	return fmt.Sprint(v)
}

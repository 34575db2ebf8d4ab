// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package plan

import (
	"errors"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
)

type hclTarget struct {
	Name    string `hcl:"name,label"`
	Host    string `hcl:"host,optional"`
	User    string `hcl:"user,optional"`
	Workdir string `hcl:"workdir,optional"`
}

type hclOperation struct {
	Label         string   `hcl:"label,label"`
	Command       string   `hcl:"command"`
	Timeout       *string  `hcl:"timeout,optional"`
	StopOnFailure *bool    `hcl:"stop_on_failure,optional"`
	Targets       []string `hcl:"targets,optional"`
}

type hclPlan struct {
	Name          string         `hcl:"name,optional"`
	Description   string         `hcl:"description,optional"`
	Wait          *string        `hcl:"wait,optional"`
	Timeout       *string        `hcl:"timeout,optional"`
	StopOnFailure bool           `hcl:"stop_on_failure,optional"`
	Targets       []hclTarget    `hcl:"target,block"`
	Operations    []hclOperation `hcl:"operation,block"`
}

// DecodeHCL decodes an HCL plan file. Expressions may refer to env.NAME for
// environment variables.
func DecodeHCL(content []byte, filename string) (*Spec, error) {
	file, diags := hclsyntax.ParseConfig(content, filename, hcl.InitialPos)
	if diags.HasErrors() {
		return nil, errors.Join(ErrDecodePlan, diagErrors(diags))
	}

	var hp hclPlan

	if diags := gohcl.DecodeBody(file.Body, evalContext(), &hp); diags.HasErrors() {
		return nil, errors.Join(ErrDecodePlan, diagErrors(diags))
	}

	spec := &Spec{
		Name:          hp.Name,
		Description:   hp.Description,
		Wait:          deref(hp.Wait),
		Timeout:       deref(hp.Timeout),
		StopOnFailure: hp.StopOnFailure,
	}

	for _, t := range hp.Targets {
		spec.Targets = append(spec.Targets, TargetSpec(t))
	}

	for _, o := range hp.Operations {
		spec.Operations = append(spec.Operations, OperationSpec{
			Label:         o.Label,
			Command:       o.Command,
			Timeout:       deref(o.Timeout),
			StopOnFailure: o.StopOnFailure,
			Targets:       o.Targets,
		})
	}

	return spec, nil
}

func evalContext() *hcl.EvalContext {
	vars := make(map[string]cty.Value)

	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !hclsyntax.ValidIdentifier(k) {
			continue
		}

		vars[k] = cty.StringVal(v)
	}

	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": cty.ObjectVal(vars),
		},
	}
}

func diagErrors(diags hcl.Diagnostics) error {
	var err *multierror.Error

	for _, e := range diags.Errs() {
		err = multierror.Append(err, e)
	}

	return err.ErrorOrNil()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}

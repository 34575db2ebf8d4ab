// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package plan loads batches of operations from YAML or HCL files.
//
// A plan names a set of targets and a list of operations. Every operation runs
// on each of its targets, or on all of the plan's targets when it names none,
// and the resulting operations form a single batch with the plan's wait policy.
package plan

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/matt-FFFFFF/myrepo/internal/ctxlog"
	"github.com/matt-FFFFFF/myrepo/internal/runbatch"
	"github.com/matt-FFFFFF/myrepo/internal/target"
	"github.com/spf13/afero"
)

var (
	// ErrUnknownFormat is returned for a plan file whose extension is not .yaml, .yml or .hcl.
	ErrUnknownFormat = errors.New("unknown plan file format")
	// ErrReadPlan is returned when the plan file cannot be read.
	ErrReadPlan = errors.New("could not read plan file")
	// ErrDecodePlan is returned when the plan file cannot be decoded.
	ErrDecodePlan = errors.New("could not decode plan file")
	// ErrInvalidPlan is returned when a decoded plan is inconsistent.
	ErrInvalidPlan = errors.New("invalid plan")
	// ErrInvalidDuration is returned for a timeout or wait that is neither seconds nor a duration.
	ErrInvalidDuration = errors.New("invalid duration")
)

// Plan is a batch of operations ready for a runbatch.BatchRunner.
type Plan struct {
	Name        string
	Description string
	Source      string
	Wait        runbatch.WaitPolicy
	Operations  []runbatch.Operation
}

// TargetSpec is a named target as written in a plan file.
type TargetSpec struct {
	Name    string
	Host    string
	User    string
	Workdir string
}

// OperationSpec is an operation as written in a plan file.
type OperationSpec struct {
	Label         string
	Command       string
	Timeout       string
	StopOnFailure *bool
	Targets       []string
}

// Spec is the format independent content of a plan file.
type Spec struct {
	Name          string
	Description   string
	Wait          string
	Timeout       string
	StopOnFailure bool
	Targets       []TargetSpec
	Operations    []OperationSpec
}

// Load reads and builds the plan at path, choosing the decoder by extension.
func Load(ctx context.Context, path string) (*Plan, error) {
	content, err := afero.ReadFile(FsFactory(), path)
	if err != nil {
		return nil, errors.Join(ErrReadPlan, err)
	}

	var spec *Spec

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		spec, err = DecodeYAML(content)
	case ".hcl":
		spec, err = DecodeHCL(content, path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}

	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	p, err := spec.Build()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	p.Source = path

	ctxlog.Debug(ctx, "loaded plan", "path", path, "name", p.Name, "operations", len(p.Operations))

	return p, nil
}

// LoadAll loads every path, reporting all failures together.
func LoadAll(ctx context.Context, paths []string) ([]*Plan, error) {
	var (
		plans  []*Plan
		result *multierror.Error
	)

	for _, path := range paths {
		p, err := Load(ctx, path)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}

		plans = append(plans, p)
	}

	return plans, result.ErrorOrNil()
}

// Build resolves targets, defaults and durations into a Plan.
func (s *Spec) Build() (*Plan, error) {
	var errs *multierror.Error

	wait, err := runbatch.ParseWaitPolicy(s.Wait)
	if err != nil {
		errs = multierror.Append(errs, err)
	}

	defaultTimeout, err := ParseSeconds(s.Timeout)
	if err != nil {
		errs = multierror.Append(errs, fmt.Errorf("plan timeout: %w", err))
	}

	targets := make(map[string]target.Target, len(s.Targets))
	order := make([]string, 0, len(s.Targets))

	for _, ts := range s.Targets {
		if ts.Name == "" {
			errs = multierror.Append(errs, fmt.Errorf("%w: target without a name", ErrInvalidPlan))
			continue
		}

		if _, dup := targets[ts.Name]; dup {
			errs = multierror.Append(errs, fmt.Errorf("%w: duplicate target %q", ErrInvalidPlan, ts.Name))
			continue
		}

		targets[ts.Name] = target.Target{Host: ts.Host, User: ts.User, Workdir: ts.Workdir}
		order = append(order, ts.Name)
	}

	if len(order) == 0 {
		targets[target.LocalHost] = target.Local("")
		order = append(order, target.LocalHost)
	}

	if len(s.Operations) == 0 {
		errs = multierror.Append(errs, fmt.Errorf("%w: no operations", ErrInvalidPlan))
	}

	p := &Plan{
		Name:        s.Name,
		Description: s.Description,
		Wait:        wait,
	}

	for i, o := range s.Operations {
		timeout := defaultTimeout

		if o.Timeout != "" {
			timeout, err = ParseSeconds(o.Timeout)
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("operation %d timeout: %w", i, err))
			}
		}

		stop := s.StopOnFailure
		if o.StopOnFailure != nil {
			stop = *o.StopOnFailure
		}

		names := o.Targets
		if len(names) == 0 {
			names = order
		}

		for _, name := range names {
			tgt, ok := targets[name]
			if !ok {
				errs = multierror.Append(errs, fmt.Errorf("%w: operation %d references unknown target %q", ErrInvalidPlan, i, name))
				continue
			}

			label := o.Label
			if len(names) > 1 {
				label = fmt.Sprintf("%s [%s]", runbatch.Operation{Label: o.Label, Command: o.Command}.Name(), name)
			}

			op := runbatch.Operation{
				Label:         label,
				Command:       o.Command,
				Target:        tgt,
				Timeout:       timeout,
				StopOnFailure: stop,
			}

			if err := op.Validate(); err != nil {
				errs = multierror.Append(errs, err)
				continue
			}

			p.Operations = append(p.Operations, op)
		}
	}

	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}

	return p, nil
}

// SetDefaultUser fills user into every remote operation that has none.
func (p *Plan) SetDefaultUser(user string) {
	for i, op := range p.Operations {
		if !op.Target.IsLocal() {
			p.Operations[i].Target = op.Target.WithDefaultUser(user)
		}
	}
}

// ParseSeconds parses a number of seconds or a Go duration. The empty string is zero.
func ParseSeconds(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	var d time.Duration

	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		d = time.Duration(secs * float64(time.Second))
	} else if d, err = time.ParseDuration(s); err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}

	if d < 0 {
		return 0, fmt.Errorf("%w: %q is negative", ErrInvalidDuration, s)
	}

	return d, nil
}

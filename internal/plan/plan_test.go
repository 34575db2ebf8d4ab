// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package plan

import (
	"context"
	"testing"
	"time"

	"github.com/matt-FFFFFF/myrepo/internal/runbatch"
	"github.com/matt-FFFFFF/myrepo/internal/target"
	"github.com/prashantv/gostub"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlPlanFile = `name: nightly
description: refresh the yum repositories
wait: max
timeout: 300
targets:
  - name: local
    host: localhost
    workdir: ~/public_html/yum
  - name: mirror
    host: yum.example.com
    workdir: /srv/yum
operations:
  - label: refresh
    command: createrepo --update .
    timeout: 10m
    stop_on_failure: true
  - command: du -sh .
    targets: [mirror]
`

const hclPlanFile = `
name = "nightly"
wait = 7
stop_on_failure = true

target "local" {
  host    = "localhost"
  workdir = "/tmp"
}

target "mirror" {
  host = "yum.example.com"
  user = env.MYREPO_TEST_USER
}

operation "refresh" {
  command = "createrepo --update ."
  timeout = 90
}

operation "check" {
  command         = "test -d repodata"
  targets         = ["local"]
  stop_on_failure = false
}
`

func memFs(t *testing.T, files map[string]string) {
	t.Helper()

	fs := afero.NewMemMapFs()
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, name, []byte(content), 0o644))
	}

	stubs := gostub.Stub(&FsFactory, func() afero.Fs { return fs })
	t.Cleanup(stubs.Reset)
}

func TestLoad_YAML(t *testing.T) {
	memFs(t, map[string]string{"/plans/nightly.yaml": yamlPlanFile})

	p, err := Load(context.Background(), "/plans/nightly.yaml")
	require.NoError(t, err)

	assert.Equal(t, "nightly", p.Name)
	assert.Equal(t, "/plans/nightly.yaml", p.Source)
	assert.Equal(t, runbatch.WaitMax, p.Wait)
	require.Len(t, p.Operations, 3)

	assert.Equal(t, runbatch.Operation{
		Label:         "refresh [local]",
		Command:       "createrepo --update .",
		Target:        target.Target{Host: "localhost", Workdir: "~/public_html/yum"},
		Timeout:       10 * time.Minute,
		StopOnFailure: true,
	}, p.Operations[0])
	assert.Equal(t, "refresh [mirror]", p.Operations[1].Label)
	assert.Equal(t, "yum.example.com", p.Operations[1].Target.Host)

	assert.Equal(t, "", p.Operations[2].Label)
	assert.Equal(t, 300*time.Second, p.Operations[2].Timeout)
	assert.False(t, p.Operations[2].StopOnFailure)
}

func TestLoad_HCL(t *testing.T) {
	t.Setenv("MYREPO_TEST_USER", "jdoe")
	memFs(t, map[string]string{"/plans/nightly.hcl": hclPlanFile})

	p, err := Load(context.Background(), "/plans/nightly.hcl")
	require.NoError(t, err)

	assert.Equal(t, runbatch.WaitFor(7*time.Second), p.Wait)
	require.Len(t, p.Operations, 3)

	assert.Equal(t, "refresh [local]", p.Operations[0].Label)
	assert.Equal(t, 90*time.Second, p.Operations[0].Timeout)
	assert.True(t, p.Operations[0].StopOnFailure)

	assert.Equal(t, "jdoe", p.Operations[1].Target.User)

	assert.Equal(t, "check", p.Operations[2].Label)
	assert.Equal(t, "/tmp", p.Operations[2].Target.Workdir)
	assert.False(t, p.Operations[2].StopOnFailure)
	assert.Equal(t, time.Duration(0), p.Operations[2].Timeout)
}

func TestLoad_Errors(t *testing.T) {
	memFs(t, map[string]string{
		"/p/unknown.toml":   "x = 1",
		"/p/bad.yaml":       "operations: [",
		"/p/extra.yaml":     "operations:\n  - command: true\n    colour: red\n",
		"/p/bad.hcl":        `operation "x" {`,
		"/p/notarget.yaml":  "operations:\n  - command: ls\n    targets: [nowhere]\n",
		"/p/noops.hcl":      `name = "empty"`,
		"/p/badwait.yaml":   "wait: later\noperations:\n  - command: ls\n",
		"/p/badtime.hcl":    "operation \"x\" {\n  command = \"ls\"\n  timeout = \"-5s\"\n}\n",
		"/p/dup.yaml":       "targets:\n  - name: a\n  - name: a\noperations:\n  - command: ls\n",
		"/p/nocommand.yaml": "operations:\n  - label: empty\n",
	})

	tests := []struct {
		path string
		want error
	}{
		{path: "/p/missing.yaml", want: ErrReadPlan},
		{path: "/p/unknown.toml", want: ErrUnknownFormat},
		{path: "/p/bad.yaml", want: ErrDecodePlan},
		{path: "/p/extra.yaml", want: ErrDecodePlan},
		{path: "/p/bad.hcl", want: ErrDecodePlan},
		{path: "/p/notarget.yaml", want: ErrInvalidPlan},
		{path: "/p/noops.hcl", want: ErrInvalidPlan},
		{path: "/p/badwait.yaml", want: runbatch.ErrInvalidWaitPolicy},
		{path: "/p/badtime.hcl", want: ErrInvalidDuration},
		{path: "/p/dup.yaml", want: ErrInvalidPlan},
		{path: "/p/nocommand.yaml", want: runbatch.ErrInvalidOperation},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			_, err := Load(context.Background(), tt.path)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLoadAll_AggregatesErrors(t *testing.T) {
	memFs(t, map[string]string{
		"/p/good.yaml": "operations:\n  - command: ls\n",
	})

	plans, err := LoadAll(context.Background(), []string{"/p/good.yaml", "/p/a.yaml", "/p/b.hcl"})
	require.ErrorIs(t, err, ErrReadPlan)
	assert.Len(t, plans, 1)
	assert.Contains(t, err.Error(), "2 errors occurred")
}

func TestBuild_DefaultsToLocalhost(t *testing.T) {
	spec := &Spec{Operations: []OperationSpec{{Command: "true"}}}

	p, err := spec.Build()
	require.NoError(t, err)
	require.Len(t, p.Operations, 1)
	assert.True(t, p.Operations[0].Target.IsLocal())
	assert.Equal(t, runbatch.WaitNone, p.Wait)
}

func TestSetDefaultUser(t *testing.T) {
	p := &Plan{Operations: []runbatch.Operation{
		{Command: "a", Target: target.Local("")},
		{Command: "b", Target: target.Target{Host: "remote"}},
		{Command: "c", Target: target.Target{Host: "remote", User: "root"}},
	}}

	p.SetDefaultUser("jdoe")

	assert.Empty(t, p.Operations[0].Target.User)
	assert.Equal(t, "jdoe", p.Operations[1].Target.User)
	assert.Equal(t, "root", p.Operations[2].Target.User)
}

func TestParseSeconds(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "", want: 0},
		{in: "300", want: 300 * time.Second},
		{in: "0.25", want: 250 * time.Millisecond},
		{in: "5m", want: 5 * time.Minute},
		{in: "-1", wantErr: true},
		{in: "soon", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSeconds(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidDuration)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

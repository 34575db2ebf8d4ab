// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package repo

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidDist is returned for a distribution that is not name-version-arch.
var ErrInvalidDist = errors.New("invalid distribution")

// Dist is one build target: a distribution release on one architecture.
type Dist struct {
	Name       string // e.g. fedora, rhel
	Version    string // e.g. 14, 6
	Arch       string // e.g. x86_64, i386
	BuildLabel string // mock configuration name, defaults to Label()
}

// Label returns name-version-arch.
func (d Dist) Label() string {
	return fmt.Sprintf("%s-%s-%s", d.Name, d.Version, d.Arch)
}

// MockConfig returns the mock configuration used for builds.
func (d Dist) MockConfig() string {
	if d.BuildLabel != "" {
		return d.BuildLabel
	}

	return d.Label()
}

// ResultDir is where mock leaves built packages.
func (d Dist) ResultDir() string {
	return fmt.Sprintf("/var/lib/mock/%s/result", d.MockConfig())
}

// BuildCmd returns the mock command that rebuilds srpm. Quiet discards mock's logging.
func (d Dist) BuildCmd(srpm string, quiet bool) string {
	cmd := fmt.Sprintf("mock -r %s %s", d.MockConfig(), srpm)
	if quiet {
		cmd += " > /dev/null 2> /dev/null"
	}

	return cmd
}

// ParseDist parses name-version-arch with an optional :build-label suffix.
// The name may itself contain dashes, e.g. fedora-extras-14-i386.
func ParseDist(s string) (Dist, error) {
	s = strings.TrimSpace(s)
	spec, label, _ := strings.Cut(s, ":")

	parts := strings.Split(spec, "-")
	if len(parts) < 3 {
		return Dist{}, fmt.Errorf("%w: %q is not name-version-arch", ErrInvalidDist, s)
	}

	n := len(parts)
	d := Dist{
		Name:       strings.Join(parts[:n-2], "-"),
		Version:    parts[n-2],
		Arch:       parts[n-1],
		BuildLabel: label,
	}

	if d.Name == "" || d.Version == "" || d.Arch == "" {
		return Dist{}, fmt.Errorf("%w: %q has an empty component", ErrInvalidDist, s)
	}

	return d, nil
}

// ParseDists parses a comma separated list of distributions.
func ParseDists(s string) ([]Dist, error) {
	var (
		dists []Dist
		errs  []error
	)

	for _, item := range strings.Split(s, ",") {
		if strings.TrimSpace(item) == "" {
			continue
		}

		d, err := ParseDist(item)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		dists = append(dists, d)
	}

	if len(dists) == 0 && len(errs) == 0 {
		errs = append(errs, fmt.Errorf("%w: no distributions given", ErrInvalidDist))
	}

	return dists, errors.Join(errs...)
}

// GroupDists groups dists by name and version, keeping first-seen order.
func GroupDists(dists []Dist) [][]Dist {
	var (
		groups [][]Dist
		index  = make(map[string]int)
	)

	for _, d := range dists {
		key := d.Name + "-" + d.Version

		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, nil)
		}

		groups[i] = append(groups[i], d)
	}

	return groups
}

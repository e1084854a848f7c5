// Package credentials locates the object-storage credentials bundle that is bind-mounted into job containers.
package credentials

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/FabricioLanche/PharmaVida-Ingesta-v3/internal/apperrors"
	"github.com/go-ini/ini"
)

const (
	DefaultTarget   = "/root/.aws"
	DefaultFileName = "credentials"
	DefaultProfile  = "default"
)

// Mount is a verified credentials directory ready to be bound into a container.
type Mount struct {
	Source   string // Host directory
	Target   string // Mount point inside the container
	ReadOnly bool
	File     string // Credentials file that passed verification
}

// Resolver probes an ordered list of directories for a usable credentials file.
type Resolver struct {
	Candidates    []string
	ContainerPath string // When the winner equals this path, HostPath is mounted instead
	HostPath      string
	Target        string
	FileName      string
	Profile       string
}

// Resolve returns the mount for the first qualifying directory, trying preferred before Candidates.
// It never returns a partial mount.
func (r *Resolver) Resolve(preferred string) (Mount, error) {
	probes := r.probeOrder(preferred)
	tried := make([]string, 0, len(probes))

	for _, dir := range probes {
		file := filepath.Join(dir, r.fileName())
		tried = append(tried, file)
		if err := r.verify(file); err != nil {
			continue
		}

		source := dir
		if r.ContainerPath != "" && r.HostPath != "" && filepath.Clean(dir) == filepath.Clean(expandHome(r.ContainerPath)) {
			source = r.HostPath
		}
		return Mount{
			Source:   source,
			Target:   r.target(),
			ReadOnly: true,
			File:     file,
		}, nil
	}

	return Mount{}, apperrors.CredentialsNotFound(tried)
}

// probeOrder returns preferred followed by the candidates, expanded and without duplicates.
func (r *Resolver) probeOrder(preferred string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range append([]string{preferred}, r.Candidates...) {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		p = filepath.Clean(expandHome(p))
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// verify checks that file is a readable regular file holding the configured profile section.
func (r *Resolver) verify(file string) error {
	info, err := os.Stat(file)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", file)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	cfg, err := ini.Load(data)
	if err != nil {
		return fmt.Errorf("parse %s: %w", file, err)
	}
	if _, err := cfg.GetSection(r.profile()); err != nil {
		return err
	}
	return nil
}

func (r *Resolver) fileName() string {
	if r.FileName != "" {
		return r.FileName
	}
	return DefaultFileName
}

func (r *Resolver) profile() string {
	if r.Profile != "" {
		return r.Profile
	}
	return DefaultProfile
}

func (r *Resolver) target() string {
	if r.Target != "" {
		return r.Target
	}
	return DefaultTarget
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

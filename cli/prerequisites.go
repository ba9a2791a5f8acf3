// Package cli checks what the receiver needs on the host before it runs.
package cli

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/zhubert/eagleray-sideband/config"
)

// Kind says how a prerequisite is located.
type Kind int

const (
	// Library is a shared library resolved the way the loader searches for it.
	Library Kind = iota
	// Program is an executable resolved through PATH.
	Program
	// Directory must exist or be creatable.
	Directory
)

// Prerequisite represents something the receiver needs at runtime
type Prerequisite struct {
	Name        string // File, program or directory to look for
	Kind        Kind
	Required    bool   // Whether the receiver can run without it
	Description string // Human-readable description
}

// DefaultPrerequisites returns the checks implied by cfg.
func DefaultPrerequisites(cfg *config.Config) []Prerequisite {
	prereqs := []Prerequisite{
		{
			Name:        cfg.ServiceLibrary,
			Kind:        Library,
			Required:    true,
			Description: "VMware vdpService library",
		},
	}

	switch cfg.Trigger.Mode {
	case config.TriggerLibrary:
		prereqs = append(prereqs, Prerequisite{
			Name:        cfg.Trigger.Library,
			Kind:        Library,
			Required:    true,
			Description: "input trigger library",
		})
	case config.TriggerCommand:
		prereqs = append(prereqs, Prerequisite{
			Name:        cfg.Trigger.Command,
			Kind:        Program,
			Required:    true,
			Description: "input trigger command",
		})
	}

	if cfg.Events.Socket != "" {
		prereqs = append(prereqs, Prerequisite{
			Name:        filepath.Dir(cfg.Events.Socket),
			Kind:        Directory,
			Required:    false,
			Description: "status events socket directory",
		})
	}
	return prereqs
}

// CheckResult contains the result of checking a prerequisite
type CheckResult struct {
	Prerequisite Prerequisite
	Found        bool
	Path         string // Resolved location if found
	Error        error
}

// Check verifies a single prerequisite.
func Check(prereq Prerequisite) CheckResult {
	result := CheckResult{Prerequisite: prereq}

	var (
		path string
		err  error
	)
	switch prereq.Kind {
	case Program:
		path, err = exec.LookPath(prereq.Name)
		if err != nil {
			err = fmt.Errorf("%s not found in PATH", prereq.Name)
		}
	case Library:
		path, err = findLibrary(prereq.Name)
	case Directory:
		path, err = prereq.Name, os.MkdirAll(prereq.Name, 0755)
	default:
		err = fmt.Errorf("unknown prerequisite kind %d", prereq.Kind)
	}
	if err != nil {
		result.Error = err
		return result
	}

	result.Found = true
	result.Path = path
	return result
}

// findLibrary looks for name next to the executable, in the working
// directory and along PATH. Names with a directory component are checked
// as-is.
func findLibrary(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("no library configured")
	}
	if filepath.Base(name) != name {
		if _, err := os.Stat(name); err != nil {
			return "", fmt.Errorf("%s: %w", name, err)
		}
		return name, nil
	}

	var dirs []string
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exe))
	}
	if wd, err := os.Getwd(); err == nil {
		dirs = append(dirs, wd)
	}
	dirs = append(dirs, filepath.SplitList(os.Getenv("PATH"))...)

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%s not found next to the executable, in the working directory or in PATH", name)
}

// CheckAll verifies all prerequisites and returns results
func CheckAll(prereqs []Prerequisite) []CheckResult {
	results := make([]CheckResult, len(prereqs))
	for i, prereq := range prereqs {
		results[i] = Check(prereq)
	}
	return results
}

// ValidateRequired returns an error listing every required prerequisite
// that could not be found.
func ValidateRequired(prereqs []Prerequisite) error {
	var missing []string

	for _, prereq := range prereqs {
		if !prereq.Required {
			continue
		}
		result := Check(prereq)
		if !result.Found {
			missing = append(missing, fmt.Sprintf("  - %s (%s): %v",
				prereq.Name, prereq.Description, result.Error))
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing prerequisites:\n%s", strings.Join(missing, "\n"))
	}

	return nil
}

// FormatCheckResults formats check results for display
func FormatCheckResults(results []CheckResult) string {
	var sb strings.Builder

	sb.WriteString("Prerequisites:\n")
	for _, r := range results {
		status := "✓"
		if !r.Found {
			if r.Prerequisite.Required {
				status = "✗"
			} else {
				status = "○"
			}
		}

		sb.WriteString(fmt.Sprintf("  %s %s (%s)", status, r.Prerequisite.Name, r.Prerequisite.Description))
		if r.Found && r.Path != r.Prerequisite.Name {
			sb.WriteString(fmt.Sprintf(" -> %s", r.Path))
		} else if !r.Found {
			if r.Prerequisite.Required {
				sb.WriteString(" [REQUIRED]")
			} else {
				sb.WriteString(" [optional]")
			}
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

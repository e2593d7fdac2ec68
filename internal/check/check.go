package check

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/johns/chatlog/internal/catalog"
	"github.com/johns/chatlog/internal/config"
	"github.com/johns/chatlog/internal/lock"
)

// Status represents the outcome of a single check.
type Status int

const (
	Pass Status = iota
	Warn
	Fail
)

func (s Status) String() string {
	switch s {
	case Pass:
		return "pass"
	case Warn:
		return "warn"
	case Fail:
		return "FAIL"
	default:
		return "unknown"
	}
}

// Result holds the outcome of a single check.
type Result struct {
	Name   string
	Status Status
	Detail string
}

// Report aggregates all check results.
type Report struct {
	Results []Result
}

// HasFailures returns true if any result has Fail status.
func (r Report) HasFailures() bool {
	for _, res := range r.Results {
		if res.Status == Fail {
			return true
		}
	}
	return false
}

// Format returns the human-readable report string.
func (r Report) Format() string {
	if len(r.Results) == 0 {
		return "chatlog check\n\n  no checks ran\n"
	}

	// Find max name length for alignment.
	maxName := 0
	for _, res := range r.Results {
		if len(res.Name) > maxName {
			maxName = len(res.Name)
		}
	}

	var b strings.Builder
	b.WriteString("chatlog check\n\n")

	var passed, warnings, failures int
	for _, res := range r.Results {
		switch res.Status {
		case Pass:
			passed++
		case Warn:
			warnings++
		case Fail:
			failures++
		}
		fmt.Fprintf(&b, "  %-4s  %-*s  %s\n", res.Status, maxName, res.Name, res.Detail)
	}

	fmt.Fprintf(&b, "\n%d passed, %d warning, %d failure\n", passed, warnings, failures)
	return b.String()
}

// CheckConfig reports the resolved config path. Always passes — broken TOML
// is caught when the config is loaded before we get here.
func CheckConfig() Result {
	cfgPath := filepath.Join(config.ConfigDir(), "config.toml")
	return Result{
		Name:   "config",
		Status: Pass,
		Detail: config.CompressHome(cfgPath),
	}
}

// CheckStorePath checks whether the session store directory exists and is
// writable.
func CheckStorePath(path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		return Result{Name: "store", Status: Warn, Detail: config.CompressHome(path) + " not found (created on first session)"}
	}
	if !info.IsDir() {
		return Result{Name: "store", Status: Fail, Detail: path + " is not a directory"}
	}
	probe := filepath.Join(path, ".write-probe")
	if err := os.WriteFile(probe, nil, 0o600); err != nil {
		return Result{Name: "store", Status: Fail, Detail: path + " not writable"}
	}
	os.Remove(probe)
	return Result{Name: "store", Status: Pass, Detail: config.CompressHome(path)}
}

// CheckSessions reports how many session logs the project directory holds.
func CheckSessions(sessionDir string) Result {
	cat := &catalog.Catalog{Dir: sessionDir}
	summaries, err := cat.List()
	if err != nil {
		return Result{Name: "sessions", Status: Fail, Detail: err.Error()}
	}
	if len(summaries) == 0 {
		return Result{Name: "sessions", Status: Pass, Detail: "no sessions recorded yet"}
	}
	return Result{Name: "sessions", Status: Pass, Detail: fmt.Sprintf("%d session logs", len(summaries))}
}

// CheckLocks counts live and stale lock sidecars without removing anything.
func CheckLocks(sessionDir string) Result {
	entries, err := os.ReadDir(sessionDir)
	if err != nil {
		return Result{Name: "locks", Status: Pass, Detail: "no lock files"}
	}

	live, stale := 0, 0
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != lock.Suffix {
			continue
		}
		if lock.IsStale(filepath.Join(sessionDir, e.Name())) {
			stale++
		} else {
			live++
		}
	}
	if stale > 0 {
		return Result{Name: "locks", Status: Warn, Detail: fmt.Sprintf("%d stale lock(s), run cleanup-locks", stale)}
	}
	if live > 0 {
		return Result{Name: "locks", Status: Pass, Detail: fmt.Sprintf("%d live lock(s)", live)}
	}
	return Result{Name: "locks", Status: Pass, Detail: "no lock files"}
}

// CheckCache verifies the header cache opens when enabled.
func CheckCache(cfg config.Config) Result {
	if !cfg.Cache.Enabled {
		return Result{Name: "cache", Status: Pass, Detail: "disabled"}
	}
	if _, err := os.Stat(cfg.CachePath()); err != nil {
		return Result{Name: "cache", Status: Pass, Detail: "not created yet"}
	}
	cache, err := catalog.OpenCache(cfg.CachePath())
	if err != nil {
		return Result{Name: "cache", Status: Warn, Detail: "header cache unreadable, listings fall back to full scans"}
	}
	cache.Close()
	return Result{Name: "cache", Status: Pass, Detail: config.CompressHome(cfg.CachePath())}
}

// CheckArchiveDir checks the archive directory when archiving is enabled.
func CheckArchiveDir(cfg config.Config, projectHash string) Result {
	if !cfg.Archive.Enabled {
		return Result{Name: "archive", Status: Pass, Detail: "disabled"}
	}
	dir := cfg.ArchiveDir(projectHash)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Result{Name: "archive", Status: Pass, Detail: "no archives yet"}
	}
	count := 0
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".zst") {
			count++
		}
	}
	return Result{Name: "archive", Status: Pass, Detail: fmt.Sprintf("%d archived session(s)", count)}
}

// Run executes all checks for one project and returns a report.
func Run(cfg config.Config, projectHash string) Report {
	var results []Result

	results = append(results, CheckConfig())
	results = append(results, CheckStorePath(cfg.StorePath))
	results = append(results, CheckSessions(cfg.SessionDir(projectHash)))
	results = append(results, CheckLocks(cfg.SessionDir(projectHash)))
	results = append(results, CheckCache(cfg))
	results = append(results, CheckArchiveDir(cfg, projectHash))

	return Report{Results: results}
}

package doctor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/basket/udo/internal/catalog"
	"github.com/basket/udo/internal/config"
	"github.com/basket/udo/internal/ledger"
	"github.com/basket/udo/internal/link"
	"github.com/basket/udo/internal/reminder"
	"github.com/basket/udo/internal/state"
)

type CheckResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "PASS", "FAIL", "WARN", "SKIP"
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

type Diagnosis struct {
	Timestamp   time.Time     `json:"timestamp"`
	System      SystemInfo    `json:"system"`
	WorkingPath string        `json:"working_path"`
	Results     []CheckResult `json:"results"`
}

type SystemInfo struct {
	OS      string `json:"os"`
	Arch    string `json:"arch"`
	Go      string `json:"go_version"`
	Version string `json:"version"`
}

// Failed reports whether any check failed.
func (d Diagnosis) Failed() bool {
	for _, r := range d.Results {
		if r.Status == "FAIL" {
			return true
		}
	}
	return false
}

// env is shared by the checks. root and marker are filled by checkLink.
type env struct {
	cfg         *config.Config
	workingPath string
	root        string
	marker      *link.Marker
}

// Run executes all diagnostic checks against cfg and the project that
// contains workingPath. It never modifies the index or any project.
func Run(ctx context.Context, cfg *config.Config, workingPath, version string) Diagnosis {
	d := Diagnosis{
		Timestamp:   time.Now().UTC(),
		WorkingPath: workingPath,
		System: SystemInfo{
			OS:      runtime.GOOS,
			Arch:    runtime.GOARCH,
			Go:      runtime.Version(),
			Version: version,
		},
	}

	e := &env{cfg: cfg, workingPath: workingPath}
	checks := []func(context.Context, *env) CheckResult{
		checkConfig,
		checkPermissions,
		checkIndex,
		checkCatalog,
		checkLink,
		checkStateSchema,
		checkBlockers,
		checkSessions,
	}
	for _, check := range checks {
		d.Results = append(d.Results, check(ctx, e))
	}
	return d
}

func checkConfig(_ context.Context, e *env) CheckResult {
	cfg := e.cfg
	if cfg == nil {
		return CheckResult{Name: "Config", Status: "FAIL", Message: "Configuration not loaded"}
	}
	if cfg.ReminderSchedule != "" {
		if _, err := reminder.NextRunTime(cfg.ReminderSchedule, time.Now()); err != nil {
			return CheckResult{
				Name:    "Config",
				Status:  "FAIL",
				Message: fmt.Sprintf("Invalid reminder_schedule %q", cfg.ReminderSchedule),
				Detail:  err.Error(),
			}
		}
	}
	if cfg.Missing {
		return CheckResult{Name: "Config", Status: "WARN", Message: "config.yaml missing, using defaults", Detail: "Run: udo config init"}
	}
	return CheckResult{Name: "Config", Status: "PASS", Message: fmt.Sprintf("Loaded from %s", config.ConfigPath(cfg.HomeDir))}
}

func checkPermissions(_ context.Context, e *env) CheckResult {
	if e.cfg == nil {
		return CheckResult{Name: "Permissions", Status: "SKIP", Message: "Config missing"}
	}
	testFile := filepath.Join(e.cfg.HomeDir, ".write_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return CheckResult{Name: "Permissions", Status: "FAIL", Message: fmt.Sprintf("Home dir unwritable: %v", err)}
	}
	os.Remove(testFile)
	return CheckResult{Name: "Permissions", Status: "PASS", Message: "Home directory writable"}
}

func checkIndex(_ context.Context, e *env) CheckResult {
	if e.cfg == nil {
		return CheckResult{Name: "Index", Status: "SKIP", Message: "Config missing"}
	}
	data, err := os.ReadFile(e.cfg.IndexPath())
	if errors.Is(err, fs.ErrNotExist) {
		return CheckResult{Name: "Index", Status: "PASS", Message: "No projects linked yet"}
	}
	if err != nil {
		return CheckResult{Name: "Index", Status: "FAIL", Message: fmt.Sprintf("Read failed: %v", err)}
	}
	var idx link.Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return CheckResult{
			Name:    "Index",
			Status:  "WARN",
			Message: "index.json is corrupt and is treated as empty",
			Detail:  err.Error(),
		}
	}
	var missing []string
	for path, entry := range idx.Projects {
		if _, err := os.Stat(path); err != nil {
			missing = append(missing, fmt.Sprintf("%s (%s)", path, entry.StorageID))
		}
	}
	if len(missing) > 0 {
		return CheckResult{
			Name:    "Index",
			Status:  "WARN",
			Message: fmt.Sprintf("%d of %d linked working paths no longer exist", len(missing), len(idx.Projects)),
			Detail:  strings.Join(missing, ", "),
		}
	}
	return CheckResult{Name: "Index", Status: "PASS", Message: fmt.Sprintf("%d linked projects", len(idx.Projects))}
}

func checkCatalog(ctx context.Context, e *env) CheckResult {
	if e.cfg == nil {
		return CheckResult{Name: "Catalog", Status: "SKIP", Message: "Config missing"}
	}
	path := e.cfg.CatalogPath()
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return CheckResult{Name: "Catalog", Status: "SKIP", Message: "Session catalog not created yet"}
	}
	c, err := catalog.Open(path, nil)
	if err != nil {
		return CheckResult{Name: "Catalog", Status: "FAIL", Message: fmt.Sprintf("Open failed: %v", err)}
	}
	defer c.Close()
	n, err := c.Count(ctx)
	if err != nil {
		return CheckResult{Name: "Catalog", Status: "FAIL", Message: fmt.Sprintf("Query failed: %v", err)}
	}
	return CheckResult{Name: "Catalog", Status: "PASS", Message: fmt.Sprintf("%d sessions indexed", n)}
}

func checkLink(_ context.Context, e *env) CheckResult {
	if e.workingPath == "" {
		return CheckResult{Name: "Link", Status: "SKIP", Message: "No working directory"}
	}
	root, ok := link.FindRoot(e.workingPath)
	if !ok {
		return CheckResult{Name: "Link", Status: "WARN", Message: "Directory is not linked", Detail: "Run: udo init, udo migrate or udo link"}
	}
	m, err := link.ReadMarker(root)
	if err != nil {
		return CheckResult{Name: "Link", Status: "FAIL", Message: fmt.Sprintf("Marker unreadable: %v", err)}
	}
	if info, err := os.Stat(m.StoragePath); err != nil || !info.IsDir() {
		return CheckResult{Name: "Link", Status: "FAIL", Message: fmt.Sprintf("Storage path %s is missing", m.StoragePath)}
	}
	e.root, e.marker = root, &m
	mode := "external"
	if m.InProject {
		mode = "in-project"
	}
	return CheckResult{Name: "Link", Status: "PASS", Message: fmt.Sprintf("%s -> %s (%s)", root, m.StoragePath, mode)}
}

func checkStateSchema(_ context.Context, e *env) CheckResult {
	if e.marker == nil {
		return CheckResult{Name: "State", Status: "SKIP", Message: "No linked project"}
	}
	data, err := os.ReadFile(filepath.Join(e.marker.StoragePath, state.FileName))
	if errors.Is(err, fs.ErrNotExist) {
		return CheckResult{Name: "State", Status: "WARN", Message: "PROJECT_STATE.json missing, defaults are used"}
	}
	if err != nil {
		return CheckResult{Name: "State", Status: "FAIL", Message: fmt.Sprintf("Read failed: %v", err)}
	}
	if err := state.Validate(data); err != nil {
		return CheckResult{Name: "State", Status: "WARN", Message: "PROJECT_STATE.json does not match the schema", Detail: err.Error()}
	}
	return CheckResult{Name: "State", Status: "PASS", Message: "PROJECT_STATE.json valid"}
}

func checkBlockers(_ context.Context, e *env) CheckResult {
	if e.marker == nil {
		return CheckResult{Name: "Blockers", Status: "SKIP", Message: "No linked project"}
	}
	store, err := state.NewStore(e.marker.StoragePath, nil)
	if err != nil {
		return CheckResult{Name: "Blockers", Status: "FAIL", Message: err.Error()}
	}
	refs := store.Load().DanglingBlockerRefs()
	if len(refs) == 0 {
		return CheckResult{Name: "Blockers", Status: "PASS", Message: "All blocker references resolve"}
	}
	parts := make([]string, len(refs))
	for i, r := range refs {
		parts[i] = fmt.Sprintf("%s -> %s", r.Blocker, r.TodoID)
	}
	return CheckResult{
		Name:    "Blockers",
		Status:  "WARN",
		Message: fmt.Sprintf("%d blocker references point at unknown todos", len(refs)),
		Detail:  strings.Join(parts, ", "),
	}
}

func checkSessions(_ context.Context, e *env) CheckResult {
	if e.marker == nil {
		return CheckResult{Name: "Sessions", Status: "SKIP", Message: "No linked project"}
	}
	dir := filepath.Join(e.marker.StoragePath, filepath.FromSlash(link.SessionsDir))
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return CheckResult{Name: "Sessions", Status: "WARN", Message: "Sessions directory missing", Detail: dir}
	}
	files, err := ledger.New(dir, nil, nil).Files()
	if err != nil {
		return CheckResult{Name: "Sessions", Status: "FAIL", Message: err.Error()}
	}
	if len(files) == 0 {
		return CheckResult{Name: "Sessions", Status: "PASS", Message: "No sessions recorded yet"}
	}
	return CheckResult{Name: "Sessions", Status: "PASS", Message: fmt.Sprintf("%d sessions, latest %s", len(files), files[0])}
}

package core

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/valter-silva-au/devflow/pkg/models"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestLoadGlobalConfig_Missing(t *testing.T) {
	cm := NewConfigurationManager(t.TempDir())
	cfg, err := cm.LoadGlobalConfig()
	if err != nil {
		t.Fatalf("LoadGlobalConfig() error = %v", err)
	}
	if cfg == nil || cfg.Chat.ChannelID != "" {
		t.Errorf("LoadGlobalConfig() = %+v, want empty config", cfg)
	}
}

func TestLoadRepoConfig_Missing(t *testing.T) {
	cfg, err := NewConfigurationManager(t.TempDir()).LoadRepoConfig(t.TempDir())
	if err != nil || cfg != nil {
		t.Errorf("LoadRepoConfig() = %+v, %v, want nil, nil", cfg, err)
	}
}

func TestGetMergedConfig_Precedence(t *testing.T) {
	home := t.TempDir()
	repo := t.TempDir()
	writeFile(t, filepath.Join(home, ".devflow", "config.yaml"), `
task_store:
  scope_id: global-db
  workstream: payments
  project_names:
    proj-1: Checkout
    proj-2: Ledger
  properties:
    workstream: Team
    status: Stage
chat:
  channel_id: C-GLOBAL
  history_limit: 50
code_host:
  project_id: "42"
worktree:
  branch_prefix: feat
call_timeout: 30s
`)
	writeFile(t, filepath.Join(repo, ".devflow.yaml"), `
task_store:
  project_names:
    proj-2: Ledger v2
  properties:
    status: State
chat:
  channel_id: C-REPO
message:
  max_length: 3000
worktree:
  default_branch: develop
`)

	cfg, err := NewConfigurationManager(home).GetMergedConfig(repo)
	if err != nil {
		t.Fatalf("GetMergedConfig() error = %v", err)
	}
	checks := []struct {
		name      string
		got, want any
	}{
		{"repo overrides global", cfg.Chat.ChannelID, "C-REPO"},
		{"global kept", cfg.TaskStore.ScopeID, "global-db"},
		{"global int", cfg.Chat.HistoryLimit, 50},
		{"repo int", cfg.Message.MaxLength, 3000},
		{"default int", cfg.Message.GroupCap, DefaultGroupCap},
		{"global prefix", cfg.Worktree.BranchPrefix, "feat"},
		{"repo branch", cfg.Worktree.DefaultBranch, "develop"},
		{"default remote", cfg.Worktree.Remote, DefaultRemote},
		{"default base path", cfg.Worktree.BasePath, filepath.Join(repo, DefaultWorktreeDir)},
		{"duration", cfg.CallTimeout, 30 * time.Second},
		{"default queries", len(cfg.TaskStore.Queries), len(DefaultSearchQueries)},
		{"global project name", cfg.TaskStore.ProjectNames["proj-1"], "Checkout"},
		{"repo project name", cfg.TaskStore.ProjectNames["proj-2"], "Ledger v2"},
		{"global property", cfg.TaskStore.Properties.Workstream, "Team"},
		{"repo property", cfg.TaskStore.Properties.Status, "State"},
		{"unset property", cfg.TaskStore.Properties.DueDate, ""},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: got %v, want %v", c.name, c.got, c.want)
		}
	}
	if err := RequireWorkflowConfig(cfg); err != nil {
		t.Errorf("RequireWorkflowConfig() error = %v", err)
	}
}

func TestGetMergedConfig_InvalidYAML(t *testing.T) {
	repo := t.TempDir()
	writeFile(t, filepath.Join(repo, ".devflow.yaml"), "chat: [unclosed")
	if _, err := NewConfigurationManager(t.TempDir()).GetMergedConfig(repo); err == nil {
		t.Error("GetMergedConfig() with invalid YAML should fail")
	}
}

func TestMergeConfig_NilLayersAndZeroValues(t *testing.T) {
	base := DefaultConfig("/repo")
	layer := &models.Config{Message: models.MessageConfig{GroupCap: 0, MaxLength: 100}}

	got := MergeConfig(base, nil, layer, nil)
	if got.Message.GroupCap != DefaultGroupCap {
		t.Errorf("zero value overrode the default: %d", got.Message.GroupCap)
	}
	if got.Message.MaxLength != 100 {
		t.Errorf("MaxLength = %d, want 100", got.Message.MaxLength)
	}

	got.TaskStore.Queries[0] = "mutated"
	if base.TaskStore.Queries[0] == "mutated" {
		t.Error("MergeConfig shares the query slice with its base")
	}
}

func TestValidateConfig(t *testing.T) {
	valid := DefaultConfig("/repo")
	if err := ValidateConfig(valid); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	bad := valid
	bad.Message.ReducedGroupCap = 9
	bad.Worktree.BranchPrefix = "my feature"
	bad.TaskStore.Queries = []string{"a", " "}
	bad.CallTimeout = time.Millisecond

	err := ValidateConfig(bad)
	if err == nil {
		t.Fatal("ValidateConfig() should fail")
	}
	for _, field := range []string{"message.reduced_group_cap", "worktree.branch_prefix", "task_store.queries", "call_timeout"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("error does not mention %s: %v", field, err)
		}
	}
}

func TestRequireWorkflowConfig(t *testing.T) {
	err := RequireWorkflowConfig(DefaultConfig("/repo"))
	if err == nil {
		t.Fatal("RequireWorkflowConfig() should report missing settings")
	}
	for _, key := range []string{"task_store.workstream", "chat.channel_id", "code_host.project_id"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error does not mention %s: %v", key, err)
		}
	}
}

func TestLoadSecrets(t *testing.T) {
	t.Setenv("DEVFLOW_TASK_STORE_TOKEN", "notion-secret")
	t.Setenv("DEVFLOW_CHAT_TOKEN", "xoxb-secret")
	t.Setenv("DEVFLOW_CODE_HOST_TOKEN", "glpat-secret")

	s := NewConfigurationManager(t.TempDir()).LoadSecrets()
	if s.TaskStoreToken != "notion-secret" || s.ChatToken != "xoxb-secret" || s.CodeHostToken != "glpat-secret" {
		t.Errorf("LoadSecrets() = %+v", s)
	}
}

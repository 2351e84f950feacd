package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jywlabs/coursewright/internal/template"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad_MissingCredential(t *testing.T) {
	_, err := Load(Options{Dir: t.TempDir(), Lookup: env(nil)})
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("err = %v, want ErrConfig", err)
	}
	if !strings.Contains(err.Error(), "DASHSCOPE_API_KEY") {
		t.Errorf("error should name the variable, got %q", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(Options{Dir: t.TempDir(), Lookup: env(map[string]string{EnvDashScopeKey: " sk-test "})})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIKey != "sk-test" {
		t.Errorf("APIKey = %q", cfg.APIKey)
	}
	if cfg.Model != "qwen-plus" || cfg.Provider != "dashscope" {
		t.Errorf("Model/Provider = %q/%q", cfg.Model, cfg.Provider)
	}
	if cfg.MaxRevisions != 5 || cfg.Invalidation != InvalidateAll || cfg.GateResearch || cfg.GateReview {
		t.Errorf("settings = %s", cfg.Settings)
	}
	if cfg.SerperAPIKey != "" {
		t.Errorf("SerperAPIKey = %q, want empty", cfg.SerperAPIKey)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", cfg.LogLevel)
	}
	if len(cfg.Prompts.Agents) != 3 || len(cfg.Prompts.Tasks) != 4 {
		t.Errorf("prompts: %d agents, %d tasks", len(cfg.Prompts.Agents), len(cfg.Prompts.Tasks))
	}
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, template.ConfigFile, "model: from-file\nmaxRevisions: 2\ngateResearch: true\ngateReview: true\n")

	lookup := env(map[string]string{EnvDashScopeKey: "k", EnvModel: "from-env", EnvSerperKey: "s", EnvLogLevel: "info"})

	cfg, err := Load(Options{Dir: dir, Lookup: lookup})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Model != "from-env" {
		t.Errorf("env should override file: Model = %q", cfg.Model)
	}
	if cfg.MaxRevisions != 2 || !cfg.GateResearch || !cfg.GateReview {
		t.Errorf("file values not applied: %s", cfg.Settings)
	}
	if cfg.SerperAPIKey != "s" || cfg.LogLevel != "info" {
		t.Errorf("SerperAPIKey/LogLevel = %q/%q", cfg.SerperAPIKey, cfg.LogLevel)
	}

	model, revs, gate, inv, lvl := "from-flag", 7, false, "objective", "debug"
	cfg, err = Load(Options{Dir: dir, Lookup: lookup, Overrides: Overrides{
		Model: &model, MaxRevisions: &revs, GateResearch: &gate, GateReview: &gate, Invalidation: &inv, LogLevel: &lvl,
	}})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Model != "from-flag" || cfg.MaxRevisions != 7 || cfg.GateResearch || cfg.GateReview || cfg.Invalidation != InvalidateObjective {
		t.Errorf("flags should win: %s", cfg.Settings)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
}

func TestLoad_OpenAIProviderKey(t *testing.T) {
	provider := "OpenAI"
	_, err := Load(Options{Dir: t.TempDir(), Lookup: env(map[string]string{EnvDashScopeKey: "k"}),
		Overrides: Overrides{Provider: &provider}})
	if err == nil || !strings.Contains(err.Error(), EnvOpenAIKey) {
		t.Errorf("err = %v, want missing %s", err, EnvOpenAIKey)
	}
}

func TestLoadSettings(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		check   func(t *testing.T, s Settings)
		wantErr string
	}{
		{
			name: "explicit zero values are kept",
			yaml: "temperature: 0\nmaxRetries: 0\n",
			check: func(t *testing.T, s Settings) {
				if s.Temperature != 0 || s.MaxRetries != 0 {
					t.Errorf("Temperature/MaxRetries = %v/%d, want 0/0", s.Temperature, s.MaxRetries)
				}
			},
		},
		{
			name: "durations",
			yaml: "timeout: 30s\nretryDelay: 250ms\n",
			check: func(t *testing.T, s Settings) {
				if s.Timeout != 30*time.Second || s.RetryDelay != 250*time.Millisecond {
					t.Errorf("Timeout/RetryDelay = %v/%v", s.Timeout, s.RetryDelay)
				}
			},
		},
		{
			name: "unset keys keep defaults",
			yaml: "baseURL: http://localhost:8080/v1\n",
			check: func(t *testing.T, s Settings) {
				if s.BaseURL != "http://localhost:8080/v1" || s.MaxRevisions != 5 || s.Temperature != 0.7 {
					t.Errorf("settings = %+v", s)
				}
			},
		},
		{name: "bad duration", yaml: "timeout: soon\n", wantErr: "timeout"},
		{name: "bad yaml", yaml: "model: [\n", wantErr: "invalid YAML"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, template.ConfigFile, tt.yaml)
			s, err := LoadSettings(dir)
			if tt.wantErr != "" {
				if !errors.Is(err, ErrConfig) || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("err = %v, want config error containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadSettings() error = %v", err)
			}
			tt.check(t, s)
		})
	}
}

func TestSettingsValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Settings)
		field  string
	}{
		{"unknown provider", func(s *Settings) { s.Provider = "bedrock" }, "provider"},
		{"zero revisions", func(s *Settings) { s.MaxRevisions = 0 }, "maxRevisions"},
		{"hot temperature", func(s *Settings) { s.Temperature = 3 }, "temperature"},
		{"bad invalidation", func(s *Settings) { s.Invalidation = "some" }, "invalidation"},
		{"empty model", func(s *Settings) { s.Model = " " }, "model"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			tt.modify(&s)
			err := s.Validate()
			var cfgErr *Error
			if !errors.As(err, &cfgErr) || cfgErr.Field != tt.field {
				t.Errorf("err = %v, want field %q", err, tt.field)
			}
		})
	}
	if err := DefaultSettings().Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadPrompts(t *testing.T) {
	t.Run("embedded defaults", func(t *testing.T) {
		p, err := LoadPrompts("")
		if err != nil {
			t.Fatalf("LoadPrompts() error = %v", err)
		}
		if !p.Agents[AgentResearcher].HasTool(ToolWebSearch) {
			t.Error("researcher should have web_search")
		}
		if p.Tasks[TaskChapter].AgentName != AgentAuthor {
			t.Errorf("chapter task agent = %q", p.Tasks[TaskChapter].AgentName)
		}
	})

	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{
			name:    "unknown placeholder",
			file:    template.TasksFile,
			content: strings.Replace(template.DefaultTasks, "{search_results}", "{weather}", 1),
			wantErr: "{weather}",
		},
		{
			name:    "missing required placeholder",
			file:    template.TasksFile,
			content: strings.Replace(template.DefaultTasks, "Write chapter {chapter_index}", "Write the chapter", 1),
			wantErr: "{chapter_index}",
		},
		{
			name:    "unknown agent reference",
			file:    template.TasksFile,
			content: strings.Replace(template.DefaultTasks, "agent_name: xiao_yin", "agent_name: xiao_hong", 1),
			wantErr: "xiao_hong",
		},
		{
			name:    "missing agent",
			file:    template.AgentsFile,
			content: "xiao_mei:\n  role: r\nxiao_qing:\n  role: r\n",
			wantErr: "xiao_yin",
		},
		{
			name:    "unknown tool",
			file:    template.AgentsFile,
			content: strings.Replace(template.DefaultAgents, "- web_search", "- code_interpreter", 1),
			wantErr: "code_interpreter",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, tt.file, tt.content)
			_, err := LoadPrompts(dir)
			if !errors.Is(err, ErrConfig) {
				t.Fatalf("err = %v, want ErrConfig", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %q, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".env", "CW_TEST_EXISTING=from-file\nCW_TEST_NEW=from-env-file\nCW_TEST_LOCAL=from-env\n")
	writeFile(t, dir, ".env.local", "CW_TEST_LOCAL=from-local\n")

	t.Setenv("CW_TEST_EXISTING", "from-shell")
	t.Setenv("CW_TEST_NEW", "")
	os.Unsetenv("CW_TEST_NEW")
	t.Setenv("CW_TEST_LOCAL", "")
	os.Unsetenv("CW_TEST_LOCAL")

	if err := LoadEnvFiles(dir); err != nil {
		t.Fatalf("LoadEnvFiles() error = %v", err)
	}
	if got := os.Getenv("CW_TEST_EXISTING"); got != "from-shell" {
		t.Errorf("existing var overridden: %q", got)
	}
	if got := os.Getenv("CW_TEST_NEW"); got != "from-env-file" {
		t.Errorf("CW_TEST_NEW = %q", got)
	}
	if got := os.Getenv("CW_TEST_LOCAL"); got != "from-local" {
		t.Errorf(".env.local should win over .env, got %q", got)
	}

	if err := LoadEnvFiles(t.TempDir()); err != nil {
		t.Errorf("missing files should be ignored: %v", err)
	}
}

func TestWriteDefaults(t *testing.T) {
	dir := filepath.Join(t.TempDir(), template.Dir)
	writeFileLater := func() {
		if err := os.WriteFile(filepath.Join(dir, template.ConfigFile), []byte("maxRevisions: 2\n"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	written, err := WriteDefaults(dir)
	if err != nil {
		t.Fatalf("WriteDefaults() error = %v", err)
	}
	want := []string{template.ConfigFile, template.AgentsFile, template.TasksFile}
	if strings.Join(written, ",") != strings.Join(want, ",") {
		t.Errorf("written = %v, want %v", written, want)
	}

	p, err := LoadPrompts(dir)
	if err != nil {
		t.Fatalf("LoadPrompts() on written defaults error = %v", err)
	}
	if len(p.Agents) != 3 {
		t.Errorf("agents = %d", len(p.Agents))
	}
	s, err := LoadSettings(dir)
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}
	if s != DefaultSettings() {
		t.Errorf("written config.yaml should match the defaults: %+v", s)
	}

	writeFileLater()
	written, err = WriteDefaults(dir)
	if err != nil {
		t.Fatalf("second WriteDefaults() error = %v", err)
	}
	if len(written) != 0 {
		t.Errorf("existing files should be kept, wrote %v", written)
	}
	if s, _ := LoadSettings(dir); s.MaxRevisions != 2 {
		t.Errorf("user edit was overwritten: maxRevisions = %d", s.MaxRevisions)
	}
}

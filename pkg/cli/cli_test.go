package cli

import (
	"testing"
	"time"

	"github.com/zurustar/blox/pkg/vm"
)

// clearEnv 環境変数の影響を受けないようにする
func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv("TIMEOUT", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("STEP_BUDGET", "")
}

func TestParseArgs_ValidArgs(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected Config
	}{
		{
			name: "デフォルト設定",
			args: []string{},
			expected: Config{
				LogLevel:   "info",
				LogFormat:  "text",
				StepBudget: vm.DefaultStepBudget,
				MaxDepth:   vm.DefaultMaxCallDepth,
			},
		},
		{
			name: "プロジェクトファイル指定",
			args: []string{"hello.yaml"},
			expected: Config{
				ProjectPath: "hello.yaml",
				LogLevel:    "info",
				LogFormat:   "text",
				StepBudget:  vm.DefaultStepBudget,
				MaxDepth:    vm.DefaultMaxCallDepth,
			},
		},
		{
			name: "タイムアウト指定（短縮形）",
			args: []string{"-t", "5", "hello.yaml"},
			expected: Config{
				ProjectPath: "hello.yaml",
				Timeout:     5 * time.Second,
				LogLevel:    "info",
				LogFormat:   "text",
				StepBudget:  vm.DefaultStepBudget,
				MaxDepth:    vm.DefaultMaxCallDepth,
			},
		},
		{
			name: "フラグが位置引数の後",
			args: []string{"hello.yaml", "--timeout", "10", "-l", "debug"},
			expected: Config{
				ProjectPath: "hello.yaml",
				Timeout:     10 * time.Second,
				LogLevel:    "debug",
				LogFormat:   "text",
				StepBudget:  vm.DefaultStepBudget,
				MaxDepth:    vm.DefaultMaxCallDepth,
			},
		},
		{
			name: "実行パラメータ指定",
			args: []string{"--step-budget", "8", "--max-depth=50", "--log-format", "json", "p.yaml"},
			expected: Config{
				ProjectPath: "p.yaml",
				LogLevel:    "info",
				LogFormat:   "json",
				StepBudget:  8,
				MaxDepth:    50,
			},
		},
		{
			name: "対話モードの後に位置引数",
			args: []string{"-i", "chat.yaml"},
			expected: Config{
				ProjectPath: "chat.yaml",
				LogLevel:    "info",
				LogFormat:   "text",
				StepBudget:  vm.DefaultStepBudget,
				MaxDepth:    vm.DefaultMaxCallDepth,
				Interactive: true,
			},
		},
		{
			name: "ソフトエラー",
			args: []string{"--rpc-errors", "soft", "p.yaml"},
			expected: Config{
				ProjectPath: "p.yaml",
				LogLevel:    "info",
				LogFormat:   "text",
				StepBudget:  vm.DefaultStepBudget,
				MaxDepth:    vm.DefaultMaxCallDepth,
				RPCErrors:   vm.Soft,
			},
		},
		{
			name: "ヘルプ表示",
			args: []string{"-h"},
			expected: Config{
				LogLevel:   "info",
				LogFormat:  "text",
				StepBudget: vm.DefaultStepBudget,
				MaxDepth:   vm.DefaultMaxCallDepth,
				ShowHelp:   true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)

			config, err := ParseArgs(tt.args)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if config.ProjectPath != tt.expected.ProjectPath {
				t.Errorf("ProjectPath = %q, want %q", config.ProjectPath, tt.expected.ProjectPath)
			}
			if config.Timeout != tt.expected.Timeout {
				t.Errorf("Timeout = %v, want %v", config.Timeout, tt.expected.Timeout)
			}
			if config.LogLevel != tt.expected.LogLevel {
				t.Errorf("LogLevel = %q, want %q", config.LogLevel, tt.expected.LogLevel)
			}
			if config.LogFormat != tt.expected.LogFormat {
				t.Errorf("LogFormat = %q, want %q", config.LogFormat, tt.expected.LogFormat)
			}
			if config.StepBudget != tt.expected.StepBudget {
				t.Errorf("StepBudget = %d, want %d", config.StepBudget, tt.expected.StepBudget)
			}
			if config.MaxDepth != tt.expected.MaxDepth {
				t.Errorf("MaxDepth = %d, want %d", config.MaxDepth, tt.expected.MaxDepth)
			}
			if config.RPCErrors != tt.expected.RPCErrors {
				t.Errorf("RPCErrors = %v, want %v", config.RPCErrors, tt.expected.RPCErrors)
			}
			if config.Interactive != tt.expected.Interactive {
				t.Errorf("Interactive = %v, want %v", config.Interactive, tt.expected.Interactive)
			}
			if config.ShowHelp != tt.expected.ShowHelp {
				t.Errorf("ShowHelp = %v, want %v", config.ShowHelp, tt.expected.ShowHelp)
			}
			if config.TickInterval != vm.DefaultTickInterval {
				t.Errorf("TickInterval = %v, want %v", config.TickInterval, vm.DefaultTickInterval)
			}
		})
	}
}

func TestParseArgs_Environment(t *testing.T) {
	t.Setenv("TIMEOUT", "30")
	t.Setenv("LOG_LEVEL", "WARN")
	t.Setenv("STEP_BUDGET", "16")

	config, err := ParseArgs([]string{"p.yaml"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", config.Timeout)
	}
	if config.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", config.LogLevel)
	}
	if config.StepBudget != 16 {
		t.Errorf("StepBudget = %d, want 16", config.StepBudget)
	}

	// コマンドラインフラグが優先
	config, err = ParseArgs([]string{"-t", "3", "--step-budget", "4", "p.yaml"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.Timeout != 3*time.Second || config.StepBudget != 4 {
		t.Errorf("flags should override environment, got %v and %d", config.Timeout, config.StepBudget)
	}
}

func TestParseArgs_InvalidArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{
			name: "負のタイムアウト",
			args: []string{"--timeout", "-10"},
		},
		{
			name: "無効なログレベル",
			args: []string{"--log-level", "invalid"},
		},
		{
			name: "無効なログレベル（短縮形）",
			args: []string{"-l", "trace"},
		},
		{
			name: "無効なログ形式",
			args: []string{"--log-format", "xml"},
		},
		{
			name: "負のステップ数",
			args: []string{"--step-budget", "-1"},
		},
		{
			name: "ゼロの呼び出し深さ",
			args: []string{"--max-depth", "0"},
		},
		{
			name: "ゼロのティック間隔",
			args: []string{"--tick-interval", "0"},
		},
		{
			name: "無効なエラー方式",
			args: []string{"--syscall-errors", "quiet"},
		},
		{
			name: "複数のプロジェクト",
			args: []string{"a.yaml", "b.yaml"},
		},
		{
			name: "未定義のフラグ",
			args: []string{"--headless"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)

			_, err := ParseArgs(tt.args)
			if err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestReorderArgs(t *testing.T) {
	got := reorderArgs([]string{"p.yaml", "-i", "--timeout=5", "-l", "debug"})
	want := []string{"-i", "--timeout=5", "-l", "debug", "p.yaml"}

	if len(got) != len(want) {
		t.Fatalf("reorderArgs() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("reorderArgs()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

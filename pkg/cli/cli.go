package cli

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/zurustar/blox/pkg/logger"
	"github.com/zurustar/blox/pkg/vm"
)

// Config はコマンドライン引数から解析された設定を保持する
type Config struct {
	ProjectPath   string        // プロジェクトファイルのパス（YAML）
	Timeout       time.Duration // タイムアウト時間（0は無制限）
	LogLevel      string        // ログレベル（debug, info, warn, error）
	LogFormat     string        // ログ形式（text, json）
	StepBudget    int           // 1ティックあたりの最大ステップ数
	MaxDepth      int           // 最大呼び出し深さ
	TickInterval  time.Duration // 全プロセス待機中のティック間隔
	Encoding      string        // プロジェクトファイルの文字コード
	RPCErrors     vm.ErrorScheme
	SyscallErrors vm.ErrorScheme
	Interactive   bool // 対話モード（入力行をメッセージとして送信）
	ShowHelp      bool // ヘルプ表示フラグ
}

// boolFlags 値を取らないフラグ
var boolFlags = map[string]bool{
	"-h": true, "--help": true, "-help": true,
	"-i": true, "--interactive": true, "-interactive": true,
}

// ParseArgs コマンドライン引数を解析してConfigを返す
func ParseArgs(args []string) (*Config, error) {
	// 引数を並べ替え：フラグを前に、位置引数を後ろに
	reorderedArgs := reorderArgs(args)

	fs := flag.NewFlagSet("blox", flag.ContinueOnError)

	config := &Config{}

	var (
		timeoutSec    int
		tickMs        int
		rpcErrors     string
		syscallErrors string
	)
	fs.IntVar(&timeoutSec, "timeout", 0, "タイムアウト時間（秒）")
	fs.IntVar(&timeoutSec, "t", 0, "タイムアウト時間（秒）（短縮形）")
	fs.StringVar(&config.LogLevel, "log-level", "info", "ログレベル（debug, info, warn, error）")
	fs.StringVar(&config.LogLevel, "l", "info", "ログレベル（短縮形）")
	fs.StringVar(&config.LogFormat, "log-format", logger.FormatText, "ログ形式（text, json）")
	fs.IntVar(&config.StepBudget, "step-budget", 0, "1ティックあたりの最大ステップ数")
	fs.IntVar(&config.MaxDepth, "max-depth", vm.DefaultMaxCallDepth, "最大呼び出し深さ")
	fs.IntVar(&tickMs, "tick-interval", int(vm.DefaultTickInterval/time.Millisecond), "ティック間隔（ミリ秒）")
	fs.StringVar(&config.Encoding, "encoding", "utf-8", "プロジェクトファイルの文字コード（utf-8, shift_jis）")
	fs.StringVar(&rpcErrors, "rpc-errors", "hard", "リモート呼び出しエラーの扱い（hard, soft）")
	fs.StringVar(&syscallErrors, "syscall-errors", "hard", "拡張呼び出しエラーの扱い（hard, soft）")
	fs.BoolVar(&config.Interactive, "interactive", false, "対話モード")
	fs.BoolVar(&config.Interactive, "i", false, "対話モード（短縮形）")
	fs.BoolVar(&config.ShowHelp, "help", false, "ヘルプを表示")
	fs.BoolVar(&config.ShowHelp, "h", false, "ヘルプを表示（短縮形）")

	if err := fs.Parse(reorderedArgs); err != nil {
		return nil, err
	}

	// 環境変数からタイムアウトを取得（コマンドラインフラグが優先）
	if timeoutSec == 0 {
		if timeoutEnv := os.Getenv("TIMEOUT"); timeoutEnv != "" {
			if t, err := strconv.Atoi(timeoutEnv); err == nil && t > 0 {
				timeoutSec = t
			}
		}
	}

	// 環境変数からログレベルを取得（コマンドラインフラグが優先）
	if config.LogLevel == "info" {
		if logLevelEnv := os.Getenv("LOG_LEVEL"); logLevelEnv != "" {
			config.LogLevel = strings.ToLower(logLevelEnv)
		}
	}

	// 環境変数からステップ数を取得（コマンドラインフラグが優先）
	if config.StepBudget == 0 {
		config.StepBudget = vm.DefaultStepBudget
		if budgetEnv := os.Getenv("STEP_BUDGET"); budgetEnv != "" {
			if n, err := strconv.Atoi(budgetEnv); err == nil && n > 0 {
				config.StepBudget = n
			}
		}
	}

	// タイムアウトの検証
	if timeoutSec < 0 {
		return nil, fmt.Errorf("timeout must be non-negative, got %d", timeoutSec)
	}
	config.Timeout = time.Duration(timeoutSec) * time.Second

	if config.StepBudget < 0 {
		return nil, fmt.Errorf("step budget must be positive, got %d", config.StepBudget)
	}
	if config.MaxDepth <= 0 {
		return nil, fmt.Errorf("max depth must be positive, got %d", config.MaxDepth)
	}
	if tickMs <= 0 {
		return nil, fmt.Errorf("tick interval must be positive, got %d", tickMs)
	}
	config.TickInterval = time.Duration(tickMs) * time.Millisecond

	// ログレベルの検証
	if _, err := logger.ParseLevel(config.LogLevel); err != nil {
		return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.LogLevel)
	}
	switch config.LogFormat {
	case logger.FormatText, logger.FormatJSON:
	default:
		return nil, fmt.Errorf("invalid log format: %s (must be text or json)", config.LogFormat)
	}

	var ok bool
	if config.RPCErrors, ok = vm.ParseErrorScheme(rpcErrors); !ok {
		return nil, fmt.Errorf("invalid rpc error scheme: %s (must be hard or soft)", rpcErrors)
	}
	if config.SyscallErrors, ok = vm.ParseErrorScheme(syscallErrors); !ok {
		return nil, fmt.Errorf("invalid syscall error scheme: %s (must be hard or soft)", syscallErrors)
	}

	// 位置引数（プロジェクトファイルのパス）
	if fs.NArg() > 1 {
		return nil, fmt.Errorf("expected one project file, got %d arguments", fs.NArg())
	}
	if fs.NArg() == 1 {
		config.ProjectPath = fs.Arg(0)
	}

	return config, nil
}

// reorderArgs 引数を並べ替えて、フラグを前に、位置引数を後ろに配置する
func reorderArgs(args []string) []string {
	var flags []string
	var positional []string

	for i := 0; i < len(args); i++ {
		arg := args[i]

		// フラグかどうかを判定（-または--で始まる）
		if len(arg) > 0 && arg[0] == '-' {
			flags = append(flags, arg)

			// 次の引数が値である可能性をチェック
			// （-t 5 のような場合、--timeout=5 は1つの引数）
			if strings.Contains(arg, "=") || boolFlags[arg] {
				continue
			}
			if i+1 < len(args) && len(args[i+1]) > 0 && args[i+1][0] != '-' {
				i++
				flags = append(flags, args[i])
			}
		} else {
			// 位置引数
			positional = append(positional, arg)
		}
	}

	// フラグを前に、位置引数を後ろに配置
	return append(flags, positional...)
}

// PrintHelp ヘルプメッセージを表示
func PrintHelp() {
	fmt.Fprintf(os.Stdout, `blox - block project runner

Usage:
  blox [options] <project.yaml>

Arguments:
  project.yaml  実行するプロジェクトファイル（YAML）

Options:
  -t, --timeout <seconds>     指定秒数後にプログラムを終了（デフォルト: 無制限）
  -l, --log-level <level>     ログレベル: debug, info, warn, error（デフォルト: info）
  --log-format <format>       ログ形式: text, json（デフォルト: text）
  --step-budget <n>           1ティックあたりの最大ステップ数（デフォルト: %d）
  --max-depth <n>             最大呼び出し深さ（デフォルト: %d）
  --tick-interval <ms>        待機中のティック間隔（ミリ秒）（デフォルト: %d）
  --encoding <name>           プロジェクトファイルの文字コード: utf-8, shift_jis
  --rpc-errors <scheme>       リモート呼び出しエラー: hard（停止）, soft（値として返す）
  --syscall-errors <scheme>   拡張呼び出しエラー: hard, soft
  -i, --interactive           対話モード（入力した行をメッセージとして送信）
  -h, --help                  このヘルプを表示

Environment Variables:
  TIMEOUT=<seconds>           タイムアウト時間（秒）
  LOG_LEVEL=<level>           ログレベル
  STEP_BUDGET=<n>             1ティックあたりの最大ステップ数

Exit Status:
  0  すべてのスクリプトが終了
  1  エラー
  2  停止（タイムアウト、stop all、割り込み）

Examples:
  blox hello.yaml                     プロジェクトを実行
  blox --timeout 10 game.yaml         10秒後に自動終了
  blox -i chat.yaml                   対話モードで実行
  blox --encoding shift_jis old.yaml  Shift-JISのファイルを読み込む
  LOG_LEVEL=debug blox hello.yaml     デバッグログを有効化
`, vm.DefaultStepBudget, vm.DefaultMaxCallDepth, vm.DefaultTickInterval/time.Millisecond)
}

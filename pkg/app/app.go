package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/zurustar/blox/pkg/capability"
	"github.com/zurustar/blox/pkg/cli"
	"github.com/zurustar/blox/pkg/logger"
	"github.com/zurustar/blox/pkg/project"
	"github.com/zurustar/blox/pkg/vm"
)

// Exit codes returned by ExitCode.
const (
	ExitOK      = 0
	ExitError   = 1
	ExitStopped = 2
)

// Application はアプリケーションのメインロジックを管理する
type Application struct {
	config *cli.Config
	log    *slog.Logger
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	// newConsole は対話モードの行入力を作成する（テストで差し替え可能）
	newConsole func() lineReader
}

// New Applicationを作成
func New(stdin io.Reader, stdout, stderr io.Writer) *Application {
	return &Application{
		stdin:      stdin,
		stdout:     stdout,
		stderr:     stderr,
		newConsole: newLinerReader,
	}
}

// Run アプリケーションを実行
//
// スクリプトが stop all やタイムアウトで停止した場合は vm.ErrStopped を返す
func (app *Application) Run(args []string) error {
	// 1. コマンドライン引数の解析
	if err := app.parseArgs(args); err != nil {
		return fmt.Errorf("failed to parse args: %w", err)
	}

	if app.config.ShowHelp || app.config.ProjectPath == "" {
		cli.PrintHelp()
		return nil
	}

	// 2. ロガーの初期化
	if err := app.initLogger(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	// 3. プロジェクトの読み込み
	proj, err := app.loadProject()
	if err != nil {
		return fmt.Errorf("failed to load project: %w", err)
	}
	app.log.Info("Project loaded", "name", proj.Name, "entities", len(proj.Entities))

	// 4. 割り込みで停止できるようにする
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return app.runProject(ctx, proj)
}

// parseArgs コマンドライン引数を解析
func (app *Application) parseArgs(args []string) error {
	config, err := cli.ParseArgs(args)
	if err != nil {
		return err
	}
	app.config = config
	return nil
}

// initLogger ロガーを初期化
func (app *Application) initLogger() error {
	if err := logger.InitLoggerWithOptions(app.config.LogLevel, app.config.LogFormat, app.stderr); err != nil {
		return err
	}
	app.log = logger.GetLogger()
	return nil
}

// loadProject プロジェクトファイルを読み込む
func (app *Application) loadProject() (*vm.Project, error) {
	loader := project.NewLoader(project.WithEncoding(app.config.Encoding))
	return loader.Load(app.config.ProjectPath)
}

// runProject ホストとスケジューラを作成してプロジェクトを実行
func (app *Application) runProject(ctx context.Context, proj *vm.Project) error {
	var con *console
	input := newLineInput(app.stdin, app.stdout)
	if app.config.Interactive {
		con = newConsole(app.newConsole(), app.stdout, app.log)
		defer con.Close()
		input = con.Ask
	}

	host, err := capability.NewLocal(
		capability.WithLogger(app.log),
		capability.WithOutput(app.stdout),
		capability.WithInput(input),
	)
	if err != nil {
		return fmt.Errorf("failed to create host: %w", err)
	}
	defer host.Close()
	registerServices(host)

	sched := vm.New(proj, host,
		vm.WithLogger(app.log),
		vm.WithTimeout(app.config.Timeout),
		vm.WithStepBudget(app.config.StepBudget),
		vm.WithMaxCallDepth(app.config.MaxDepth),
		vm.WithTickInterval(app.config.TickInterval),
		vm.WithRPCErrorScheme(app.config.RPCErrors),
		vm.WithSyscallErrorScheme(app.config.SyscallErrors),
		vm.WithKeepAlive(app.config.Interactive),
	)

	if con != nil {
		// 入力行をメッセージとして送信し、入力終了で停止
		go con.Run(sched.Broadcast, sched.Stop)
	}

	err = sched.Run(ctx)
	switch {
	case err == nil:
		app.log.Info("Project finished", "ticks", sched.Ticks())
	case errors.Is(err, vm.ErrStopped):
		app.log.Info("Project stopped", "ticks", sched.Ticks())
	default:
		app.log.Error("Project failed", "error", err)
	}
	return err
}

// ExitCode maps the result of Run to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, vm.ErrStopped):
		return ExitStopped
	default:
		return ExitError
	}
}

package app

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/peterh/liner"

	"github.com/zurustar/blox/pkg/capability"
)

const (
	consolePrompt = "> "
	quitCommand   = ":quit"
)

var errConsoleClosed = errors.New("console closed")

// lineReader is the part of liner.State the console uses.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
	Close() error
}

// newLinerReader 端末の行編集を有効にする
func newLinerReader() lineReader {
	ln := liner.NewLiner()
	ln.SetCtrlCAborts(true)
	return ln
}

// console は対話モードの入力を扱う
//
// 入力された行は、ask ブロックが回答を待っていればその回答になり、
// そうでなければメッセージ名として送信される
type console struct {
	reader lineReader
	out    io.Writer
	log    *slog.Logger

	mu      sync.Mutex
	pending chan string

	done      chan struct{}
	closeOnce sync.Once
}

func newConsole(reader lineReader, out io.Writer, log *slog.Logger) *console {
	return &console{
		reader: reader,
		out:    out,
		log:    log,
		done:   make(chan struct{}),
	}
}

// Ask shows a question and waits for the next line typed.
// It implements capability.InputFunc.
func (c *console) Ask(prompt string) (string, error) {
	c.mu.Lock()
	if c.pending != nil {
		c.mu.Unlock()
		return "", errors.New("another question is waiting for an answer")
	}
	answer := make(chan string, 1)
	c.pending = answer
	c.mu.Unlock()

	if prompt != "" {
		fmt.Fprintln(c.out, prompt)
	}

	select {
	case line := <-answer:
		return line, nil
	case <-c.done:
		return "", errConsoleClosed
	}
}

// Run reads lines until the input ends or the quit command is typed, then
// calls stop.
func (c *console) Run(broadcast func(name string), stop func()) {
	defer c.shutdown()
	defer stop()

	for {
		line, err := c.reader.Prompt(consolePrompt)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF), errors.Is(err, liner.ErrPromptAborted):
				c.log.Debug("Console input ended")
			default:
				c.log.Warn("Console read failed", "error", err)
			}
			return
		}
		line = strings.TrimSpace(line)

		c.mu.Lock()
		answer := c.pending
		c.pending = nil
		c.mu.Unlock()
		if answer != nil {
			answer <- line
			continue
		}

		if line == "" {
			continue
		}
		if line == quitCommand {
			return
		}
		c.reader.AppendHistory(line)
		broadcast(line)
	}
}

func (c *console) shutdown() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Close ends pending questions and restores the terminal.
func (c *console) Close() error {
	c.shutdown()
	return c.reader.Close()
}

// newLineInput は非対話モードの入力（標準入力から1行ずつ読む）
func newLineInput(r io.Reader, out io.Writer) capability.InputFunc {
	var mu sync.Mutex
	br := bufio.NewReader(r)

	return func(prompt string) (string, error) {
		mu.Lock()
		defer mu.Unlock()

		if prompt != "" {
			fmt.Fprintln(out, prompt)
		}
		line, err := br.ReadString('\n')
		if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
			return "", fmt.Errorf("failed to read input: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
}

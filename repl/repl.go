// Package repl implements the interactive terminal loop.
package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/pmeller/verba/config"
	"github.com/pmeller/verba/errors"
	"github.com/pmeller/verba/llm"
	"github.com/pmeller/verba/render"
)

const helpText = `.help                    show this help
.info                    show the current scope settings
.model <id>              switch model, globs allowed (no argument lists models)
.role <name>             activate a role (no argument lists roles)
.prompt <text>           activate a one-off prompt as a temporary role
.session [name]          enter a session (no name for a throwaway one)
.save session [name]     persist the current session
.clear messages          drop the current session history
.set <key> <value>       set temperature, top_p or compress_threshold
.exit role               deactivate the role
.exit session            leave the session
.exit                    quit`

// Repl runs the dot-command loop over stdin.
type Repl struct {
	cfg   *config.Config
	out   io.Writer
	abort *llm.AbortSignal
}

// New creates a Repl writing replies to out.
func New(cfg *config.Config, out io.Writer) *Repl {
	return &Repl{
		cfg:   cfg,
		out:   out,
		abort: llm.NewAbortSignal(),
	}
}

// Run reads input lines until .exit or EOF. Ctrl-C aborts the in-flight
// reply instead of killing the process.
func (r *Repl) Run(ctx context.Context) error {
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)
	go func() {
		for range interrupts {
			r.abort.Set()
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(r.out, r.prompt())
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, ".") {
			quit, err := r.handleCommand(ctx, input)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
			if quit {
				break
			}
			continue
		}

		if err := r.processTurn(ctx, input); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "failed to read input")
	}
	return r.cfg.EndSession()
}

func (r *Repl) prompt() string {
	var scopes []string
	if s := r.cfg.Session(); s != nil {
		scopes = append(scopes, s.Name)
	}
	if role := r.cfg.Role(); role != nil {
		scopes = append(scopes, role.Name)
	}
	if len(scopes) == 0 {
		return "> "
	}
	return strings.Join(scopes, "|") + "> "
}

func (r *Repl) handleCommand(ctx context.Context, input string) (quit bool, err error) {
	command, arg, _ := strings.Cut(strings.TrimPrefix(input, "."), " ")
	arg = strings.TrimSpace(arg)

	switch command {
	case "help":
		fmt.Fprintln(r.out, helpText)
	case "info":
		info, err := r.cfg.Info()
		if err != nil {
			return false, err
		}
		fmt.Fprint(r.out, info)
	case "model":
		if arg == "" {
			for _, model := range r.cfg.Models() {
				fmt.Fprintln(r.out, model.ID())
			}
			return false, nil
		}
		return false, r.cfg.SetModel(arg)
	case "role":
		if arg == "" {
			for _, role := range r.cfg.Roles() {
				fmt.Fprintln(r.out, role.Name)
			}
			return false, nil
		}
		return false, r.cfg.SetRole(arg)
	case "prompt":
		if arg == "" {
			return false, errors.New("usage: .prompt <text>")
		}
		return false, r.cfg.SetPrompt(arg)
	case "session":
		return false, r.cfg.StartSession(arg)
	case "save":
		if name, ok := strings.CutPrefix(arg, "session"); ok {
			return false, r.cfg.SaveActiveSession(strings.TrimSpace(name))
		}
		return false, errors.New("usage: .save session [name]")
	case "clear":
		switch arg {
		case "messages":
			r.cfg.ClearSessionMessages()
		case "role":
			return false, r.cfg.ClearRole()
		default:
			return false, errors.New("usage: .clear messages|role")
		}
	case "set":
		return false, r.set(arg)
	case "exit":
		switch arg {
		case "":
			return true, nil
		case "role":
			return false, r.cfg.ClearRole()
		case "session":
			return false, r.cfg.EndSession()
		default:
			return false, errors.New("usage: .exit [role|session]")
		}
	default:
		return false, errors.New("unknown command '.%s', try .help", command)
	}
	return false, nil
}

func (r *Repl) set(arg string) error {
	key, value, ok := strings.Cut(arg, " ")
	if !ok {
		return errors.New("usage: .set <key> <value>")
	}
	value = strings.TrimSpace(value)

	switch key {
	case "temperature":
		if value == "null" {
			r.cfg.SetTemperature(nil)
			return nil
		}
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid temperature '%s'", value)
		}
		r.cfg.SetTemperature(&v)
	case "top_p":
		if value == "null" {
			r.cfg.SetTopP(nil)
			return nil
		}
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid top_p '%s'", value)
		}
		r.cfg.SetTopP(&v)
	case "compress_threshold":
		if value == "null" {
			r.cfg.SetCompressThreshold(nil)
			return nil
		}
		v, err := strconv.Atoi(value)
		if err != nil {
			return errors.Wrapf(err, "invalid compress_threshold '%s'", value)
		}
		r.cfg.SetCompressThreshold(&v)
	default:
		return errors.New("unknown setting '%s'", key)
	}
	return nil
}

func (r *Repl) processTurn(ctx context.Context, input string) error {
	client, err := r.cfg.NewClientForModel(ctx)
	if err != nil {
		return err
	}

	content := llm.MessageContent{Text: input}
	data := r.cfg.BuildSendData(content)

	r.abort.Reset()
	reply, err := llm.SendStream(ctx, client, data, r.abort, func(events *llm.EventQueue) error {
		return render.Stream(r.out, events)
	})
	if err != nil {
		return err
	}
	r.cfg.SaveMessage(content, reply)

	r.compressIfNeeded(ctx, client)
	return nil
}

// compressIfNeeded runs the summarization round trip once the session grows
// past its threshold. A failed summarization only releases the latch; the
// history stays as it was.
func (r *Repl) compressIfNeeded(ctx context.Context, client llm.Client) {
	if !r.cfg.ShouldCompressSession() {
		return
	}
	fmt.Fprintln(r.out, "Compressing session history...")
	data := r.cfg.BuildSendData(llm.MessageContent{Text: r.cfg.SummarizeInstruction()})
	summary, err := client.SendMessage(ctx, data)
	if err != nil {
		r.cfg.EndCompressingSession()
		fmt.Fprintf(os.Stderr, "Failed to compress session: %v\n", err)
		return
	}
	r.cfg.CompressSession(summary)
}

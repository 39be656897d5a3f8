package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/pmeller/verba/config"
	"github.com/pmeller/verba/llm"
	"github.com/pmeller/verba/render"
	"github.com/pmeller/verba/repl"
)

func main() {
	modelFlag := flag.String("m", "", "Model to use, e.g. 'openai:gpt-4o' (globs allowed)")
	roleFlag := flag.String("r", "", "Role to apply")
	sessionFlag := flag.String("s", "", "Session to create or resume")
	listRolesFlag := flag.Bool("list-roles", false, "List available roles and exit")
	listSessionsFlag := flag.Bool("list-sessions", false, "List saved sessions and exit")
	flag.Parse()

	dir, err := config.Dir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error locating configuration: %+v\n", err)
		os.Exit(1)
	}
	cfg, err := config.Init(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %+v\n", err)
		os.Exit(1)
	}

	if *listRolesFlag {
		for _, role := range cfg.Roles() {
			fmt.Println(role.Name)
		}
		return
	}
	if *listSessionsFlag {
		for _, name := range cfg.ListSessions() {
			fmt.Println(name)
		}
		return
	}

	if *modelFlag != "" {
		if err := cfg.SetModel(*modelFlag); err != nil {
			fmt.Fprintf(os.Stderr, "Error selecting model: %+v\n", err)
			os.Exit(1)
		}
	}
	if *roleFlag != "" {
		if err := cfg.SetRole(*roleFlag); err != nil {
			fmt.Fprintf(os.Stderr, "Error applying role '%s': %+v\n", *roleFlag, err)
			os.Exit(1)
		}
	}
	if *sessionFlag != "" {
		if err := cfg.StartSession(*sessionFlag); err != nil {
			fmt.Fprintf(os.Stderr, "Error starting session '%s': %+v\n", *sessionFlag, err)
			os.Exit(1)
		}
	}

	ctx := context.Background()

	if prompt := strings.Join(flag.Args(), " "); prompt != "" {
		if err := oneShot(ctx, cfg, prompt); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %+v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := repl.New(cfg, os.Stdout).Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %+v\n", err)
		os.Exit(1)
	}
}

// oneShot streams a single reply to stdout and exits, persisting the session
// when one was requested and saving is enabled.
func oneShot(ctx context.Context, cfg *config.Config, prompt string) error {
	client, err := cfg.NewClientForModel(ctx)
	if err != nil {
		return err
	}

	abort := llm.NewAbortSignal()
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)
	go func() {
		<-interrupts
		abort.Set()
	}()

	content := llm.MessageContent{Text: prompt}
	reply, err := llm.SendStream(ctx, client, cfg.BuildSendData(content), abort, func(events *llm.EventQueue) error {
		return render.Stream(os.Stdout, events)
	})
	if err != nil {
		return err
	}
	cfg.SaveMessage(content, reply)
	return cfg.EndSession()
}

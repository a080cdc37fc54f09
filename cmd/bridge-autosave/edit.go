package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/elodin/bridge/pkg/prompt"
)

var editCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit the settings form interactively; every change autosaves",
	Args:  cobra.NoArgs,
	RunE:  runEdit,
}

func init() {
	editCmd.Flags().String("status-html", "", "keep an HTML status panel at this path")
	editCmd.Flags().String("status-addr", "", "serve the status panel on this address, e.g. 127.0.0.1:8765")
}

func runEdit(cmd *cobra.Command, _ []string) (err error) {
	rt, err := newApp(cmd)
	if err != nil {
		return err
	}
	if path, _ := cmd.Flags().GetString("status-html"); path != "" {
		rt.cfg.Status.HTMLPath = path
	}
	if addr, _ := cmd.Flags().GetString("status-addr"); addr != "" {
		rt.cfg.Status.Addr = addr
	}

	// Only the editor loop listens for SIGINT. The session keeps the
	// command context so pending saves still run after an interrupt.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	driver := prompt.NewSurveyDriver(os.Stdout, prompt.DefaultPageSize)
	if err := rt.askPassword(ctx, driver); err != nil {
		return err
	}
	session, err := rt.open(cmd.Context(), rt.terminal())
	if err != nil {
		_ = rt.closeFn()
		return err
	}
	defer func() {
		if cerr := rt.close(session); err == nil {
			err = cerr
		}
	}()

	if addr := session.StatusAddr(); addr != nil {
		fmt.Printf("status panel: http://%s/\n", addr)
	}

	editor, err := prompt.NewEditor(session.Form(),
		prompt.WithPromptDriver(driver),
		prompt.WithLogger(rt.log.Named("prompt")),
		prompt.WithFlush(session.Flush))
	if err != nil {
		return err
	}

	if err := editUntilDone(ctx, cmd.Context(), editor.Run, session.Flush); err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", session.Form().Action(), session.Controller().State())
	return nil
}

// editUntilDone runs the editor loop under ctx. When the operator aborts or
// ctx is interrupted, the edits made so far are flushed under flushCtx.
func editUntilDone(ctx, flushCtx context.Context, run, flush func(context.Context) error) error {
	err := run(ctx)
	if errors.Is(err, prompt.ErrAborted) || (errors.Is(err, context.Canceled) && ctx.Err() != nil) {
		return flush(flushCtx)
	}
	return err
}

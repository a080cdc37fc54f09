package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/elodin/bridge"
	"github.com/elodin/bridge/pkg/prompt"
)

var setCmd = &cobra.Command{
	Use:   "set name=value...",
	Short: "Apply field edits and save them once",
	Long: `Apply field edits and save them once.

  name=value    set a text field or select, or check a checkbox/radio
  +name=value   append a list row (hidden field)
  -name=value   uncheck a checkbox or remove a list row

Multiple-select values are comma separated. The command exits non-zero and
prints the diagnostics when the save fails.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSet,
}

func runSet(cmd *cobra.Command, args []string) (err error) {
	edits := make([]bridge.Edit, 0, len(args))
	for _, arg := range args {
		edit, err := bridge.ParseEdit(arg)
		if err != nil {
			return err
		}
		edits = append(edits, edit)
	}

	rt, err := newApp(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if err := rt.askPassword(ctx, prompt.NewSurveyDriver(os.Stdout, prompt.DefaultPageSize)); err != nil {
		return err
	}
	session, err := rt.open(ctx, rt.terminal())
	if err != nil {
		_ = rt.closeFn()
		return err
	}
	defer func() {
		if cerr := rt.close(session); err == nil {
			err = cerr
		}
	}()

	for _, edit := range edits {
		if err := edit.Apply(session.Form()); err != nil {
			return err
		}
	}
	if err := session.Flush(ctx); err != nil {
		return fmt.Errorf("save failed: %w", err)
	}
	stats := session.Controller().Stats()
	if stats.Requests == 0 {
		fmt.Println("nothing to save")
	}
	return nil
}

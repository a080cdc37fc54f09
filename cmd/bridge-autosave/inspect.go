package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/elodin/bridge/pkg/prompt"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show the settings form, its endpoint and the encoded snapshot",
	Args:  cobra.NoArgs,
	RunE:  runInspect,
}

func runInspect(cmd *cobra.Command, _ []string) (err error) {
	rt, err := newApp(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if err := rt.askPassword(ctx, prompt.NewSurveyDriver(os.Stdout, prompt.DefaultPageSize)); err != nil {
		return err
	}
	session, err := rt.open(ctx)
	if err != nil {
		_ = rt.closeFn()
		return err
	}
	defer func() {
		if cerr := rt.close(session); err == nil {
			err = cerr
		}
	}()

	out := cmd.OutOrStdout()
	form := session.Form()
	heading := color.New(color.Bold)
	switch rt.cfg.Status.Color {
	case "always":
		heading.EnableColor()
	case "never":
		heading.DisableColor()
	}
	fmt.Fprintf(out, "%s %s\n", heading.Sprint("Site:"), session.WordPress().Site())
	fmt.Fprintf(out, "%s %s (%s)\n", heading.Sprint("Endpoint:"), form.Action(), strings.ToUpper(form.Method()))

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTYPE\tVALUE\tLABEL")
	for _, c := range form.Controls() {
		if c.Name == "" {
			continue
		}
		value := c.Value
		switch {
		case c.Type == "checkbox" || c.Type == "radio":
			if !c.Checked {
				value = "(" + c.Value + ")"
			}
		case len(c.Options) > 0:
			var picked []string
			for _, opt := range c.Options {
				if opt.Selected {
					picked = append(picked, opt.Value)
				}
			}
			value = strings.Join(picked, ",")
		}
		if c.Disabled {
			value += " [disabled]"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.Name, c.Type, value, c.Label)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	snap, err := form.Snapshot()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s %s\n", heading.Sprint("Snapshot:"), snap.Encode())
	return nil
}

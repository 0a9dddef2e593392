package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"minutes/internal/api"
	"minutes/internal/deps"
	"minutes/internal/preflight"
)

type checkReport struct {
	Dependencies []dependencyView   `json:"dependencies"`
	Preflight    []preflight.Result `json:"preflight"`
	Daemon       daemonView         `json:"daemon"`
}

type dependencyView struct {
	Name      string `json:"name"`
	Command   string `json:"command"`
	Path      string `json:"path,omitempty"`
	Optional  bool   `json:"optional"`
	Available bool   `json:"available"`
	Detail    string `json:"detail,omitempty"`
}

type daemonView struct {
	Address    string `json:"address"`
	Reachable  bool   `json:"reachable"`
	Version    string `json:"version,omitempty"`
	ActiveRuns int    `json:"active_runs"`
	Detail     string `json:"detail,omitempty"`
}

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check external tools, services and the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			statuses := preflight.CheckSystemDeps(cfg)
			results := preflight.RunAll(cmd.Context(), cfg)
			report := checkReport{
				Dependencies: dependencyViews(statuses),
				Preflight:    results,
				Daemon:       probeDaemon(cmd.Context(), ctx),
			}

			if jsonOutput {
				if err := writeJSON(cmd, report); err != nil {
					return err
				}
			} else {
				printCheckReport(cmd.OutOrStdout(), report, shouldColorize(cmd.OutOrStdout()))
			}

			problems := len(deps.Missing(statuses)) + len(preflight.Failed(results))
			if problems > 0 {
				return fmt.Errorf("%d check(s) failed", problems)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON output")
	return cmd
}

func dependencyViews(statuses []deps.Status) []dependencyView {
	views := make([]dependencyView, 0, len(statuses))
	for _, status := range statuses {
		views = append(views, dependencyView{
			Name:      status.Name,
			Command:   status.Command,
			Path:      status.Path,
			Optional:  status.Optional,
			Available: status.Available,
			Detail:    status.Detail,
		})
	}
	return views
}

func probeDaemon(parent context.Context, ctx *commandContext) daemonView {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return daemonView{Detail: err.Error()}
	}
	view := daemonView{Address: ctx.apiAddress(cfg)}
	if view.Address == "" {
		view.Detail = "control API disabled"
		return view
	}
	probeCtx, cancel := context.WithTimeout(parent, 3*time.Second)
	defer cancel()
	health, err := api.NewClient(view.Address).Health(probeCtx)
	if err != nil {
		view.Detail = "not reachable"
		return view
	}
	view.Reachable = true
	view.Version = health.Version
	view.ActiveRuns = health.ActiveRuns
	return view
}

func printCheckReport(out io.Writer, report checkReport, colorize bool) {
	for _, line := range dependencyLines(report.Dependencies, colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out)
	for _, line := range renderSectionHeader("Services", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, result := range report.Preflight {
		kind := statusOK
		if !result.Passed {
			kind = statusError
		}
		fmt.Fprintln(out, renderStatusLine(result.Name, kind, result.Detail, colorize))
	}
	fmt.Fprintln(out)
	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, daemonLine(report.Daemon, colorize))
}

// dependencyLines renders a summary line followed by one line per binary.
func dependencyLines(views []dependencyView, colorize bool) []string {
	lines := renderSectionHeader("Dependencies", colorize)
	var missing []string
	available := 0
	for _, view := range views {
		if view.Available {
			available++
		} else if !view.Optional {
			missing = append(missing, view.Name)
		}
	}
	if len(missing) == 0 {
		lines = append(lines, renderStatusLine("Summary", statusOK, fmt.Sprintf("%d of %d available", available, len(views)), colorize))
	} else {
		lines = append(lines, renderStatusLine("Summary", statusError, "missing "+strings.Join(missing, ", "), colorize))
	}
	for _, view := range views {
		switch {
		case view.Available:
			lines = append(lines, renderStatusLine(view.Name, statusOK, valueOr(view.Path, view.Command), colorize))
		case view.Optional:
			lines = append(lines, renderStatusLine(view.Name, statusWarn, valueOr(view.Detail, "not available"), colorize))
		default:
			lines = append(lines, renderStatusLine(view.Name, statusError, valueOr(view.Detail, "not available"), colorize))
		}
	}
	return lines
}

func daemonLine(view daemonView, colorize bool) string {
	switch {
	case view.Reachable:
		message := fmt.Sprintf("Running at %s (%d active)", view.Address, view.ActiveRuns)
		if view.Version != "" {
			message += ", version " + view.Version
		}
		return renderStatusLine("minutesd", statusOK, message, colorize)
	case view.Address == "":
		return renderStatusLine("minutesd", statusInfo, valueOr(view.Detail, "control API disabled"), colorize)
	default:
		return renderStatusLine("minutesd", statusWarn, fmt.Sprintf("%s at %s", valueOr(view.Detail, "not reachable"), view.Address), colorize)
	}
}

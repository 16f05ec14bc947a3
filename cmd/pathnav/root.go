package main

import (
	"fmt"
	"math"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"path-navigation/path_nav"
)

type app struct {
	configPath string
	v          *viper.Viper
	cfg        path_nav.AppConfig
	logger     *zap.Logger
}

func newRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "pathnav",
		Short:         "Drive a differential-drive robot along a recorded waypoint path.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "Path to config file (default ./pathnav.yaml if present).")
	flags.String("path", "", "Override path.file.")
	flags.String("log-level", "", "Override logger.level.")

	run := &cobra.Command{
		Use:   "run",
		Short: "Follow the path using the configured robot link.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := path_nav.RunLive(cmd.Context(), a.cfg, a.logger)
			a.report(res)
			return err
		},
	}
	run.Flags().String("link", "", "Override link.kind (http, udp, serial, sim).")
	run.Flags().String("base-url", "", "Override link.http.base_url.")
	run.Flags().Float64("hz", 0, "Override hz.")

	simulate := &cobra.Command{
		Use:   "simulate",
		Short: "Serve the kinematic simulator over HTTP and follow the path against it.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := path_nav.RunSimulation(cmd.Context(), a.cfg, a.logger)
			a.report(res)
			return err
		},
	}
	simulate.Flags().String("sim-addr", "", "Override sim.addr.")

	inspect := &cobra.Command{
		Use:   "path",
		Short: "Load the path file and print a summary.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := path_nav.LoadConfiguredPath(a.cfg)
			if err != nil {
				return err
			}
			ctl := a.cfg.Controller.ResolveLookAhead(path)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "waypoints:    %d\n", len(path))
			fmt.Fprintf(out, "first:        %s\n", path[0])
			fmt.Fprintf(out, "last:         %s\n", path[len(path)-1])
			fmt.Fprintf(out, "length:       %.3f\n", path_nav.PathLength(path))
			fmt.Fprintf(out, "mean spacing: %.3f\n", path_nav.MeanSpacing(path))
			fmt.Fprintf(out, "look-ahead:   %.3f\n", ctl.LookAhead)
			return nil
		},
	}

	root.AddCommand(run, simulate, inspect)
	return root
}

// init reads the config, applies flag overrides and builds the logger.
func (a *app) init(cmd *cobra.Command) error {
	v, err := path_nav.NewViper(a.configPath)
	if err != nil {
		return err
	}
	for key, flag := range map[string]string{
		"path.file":          "path",
		"logger.level":       "log-level",
		"link.kind":          "link",
		"link.http.base_url": "base-url",
		"hz":                 "hz",
		"sim.addr":           "sim-addr",
	} {
		if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}
	a.v = v

	cfg, err := path_nav.LoadConfig(v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := path_nav.NewLogger(cfg.Logger)
	if err != nil {
		return err
	}
	a.logger = logger
	return nil
}

func (a *app) report(res path_nav.Result) {
	if a.logger == nil || res.RunID == "" {
		return
	}
	a.logger.Info("run finished",
		zap.String("run_id", res.RunID),
		zap.Bool("arrived", res.Arrived),
		zap.Int("cycles", res.Cycles),
		zap.Int("advances", res.Advances),
		zap.Int("retries", res.Retries),
		zap.Int("stalls", res.Stalls),
		zap.Float64("travelled", res.Travelled),
		zap.Float64("seconds", math.Round(res.Elapsed.Seconds()*1000)/1000))
}

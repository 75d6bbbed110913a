package main

import (
	"errors"
	"fmt"
	"runtime"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vedantwpatil/FormFrame/internal/analysis"
	"github.com/vedantwpatil/FormFrame/internal/annotate"
	"github.com/vedantwpatil/FormFrame/internal/device"
	"github.com/vedantwpatil/FormFrame/internal/history"
	"github.com/vedantwpatil/FormFrame/internal/progress"
	"github.com/vedantwpatil/FormFrame/internal/recording"
	"github.com/vedantwpatil/FormFrame/internal/server"
)

func (app *Application) rootCommand() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:   "formframe",
		Short: "Overlay workout analysis onto a video and record the result",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.setup(configPath)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "configuration file (YAML)")
	root.AddCommand(app.annotateCommand(), app.serveCommand(), app.historyCommand())
	return root
}

type annotateFlags struct {
	video    string
	analysis string
	outDir   string
	label    string
	unpaced  bool
	speak    bool
	bell     bool
}

func (app *Application) annotateCommand() *cobra.Command {
	var f annotateFlags
	cmd := &cobra.Command{
		Use:   "annotate",
		Short: "Render an analysis onto a workout video and record it",
		Long: `Plays the video through the overlay renderer, records the annotated
surface and writes <label>_analyzed.<ext> to the output directory. When
recording fails and pipeline.fallback_still is set, the last rendered frame
is saved as <label>_frame.png instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.annotate(f)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&f.video, "video", "v", "", "workout video to annotate")
	flags.StringVarP(&f.analysis, "analysis", "a", "", "analysis result (JSON or YAML)")
	flags.StringVarP(&f.outDir, "out", "o", "", "output directory (overrides recording.output_dir)")
	flags.StringVar(&f.label, "label", "", "output file label (defaults to the exercise)")
	flags.BoolVar(&f.unpaced, "unpaced", false, "render as fast as possible instead of in real time")
	flags.BoolVar(&f.speak, "speak", false, "announce reps with the system speech synthesizer")
	flags.BoolVar(&f.bell, "bell", false, "ring the terminal bell on each rep")
	_ = cmd.MarkFlagRequired("video")
	_ = cmd.MarkFlagRequired("analysis")
	return cmd
}

func (app *Application) annotate(f annotateFlags) error {
	result, err := analysis.Load(f.analysis)
	if err != nil {
		return err
	}

	opts := annotate.OptionsFromConfig(app.config)
	opts.VideoPath = f.video
	opts.Label = f.label
	if f.outDir != "" {
		opts.OutputDir = f.outDir
	}
	if f.unpaced {
		opts.Realtime = false
	}

	store, err := history.NewStore(app.config.History.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	bar := progress.NewBar(app.stderr, "Annotating")
	deps := annotate.Deps{
		Encoder:    recording.NewFFmpegEncoder(app.config.Recording.FFmpegPath),
		Ledger:     store,
		OnProgress: bar.Report,
	}
	if f.speak {
		speaker, err := device.NewCommandSpeaker(runtime.GOOS)
		if err != nil {
			return err
		}
		deps.Speaker = speaker
	}
	if f.bell {
		deps.Haptic = device.NewBell(app.stderr)
	}

	run, err := annotate.NewRun(result, opts, deps)
	if err != nil {
		return err
	}
	defer run.Release()

	app.track(run.Cancel)
	defer app.track(nil)

	out, err := run.Execute(app.ctx)
	if err != nil {
		fmt.Fprintln(app.stderr)
		if app.config.Pipeline.FallbackStill && (errors.Is(err, annotate.ErrCapture) || errors.Is(err, annotate.ErrAssembly)) {
			if path, stillErr := run.ExportStill(opts.OutputDir); stillErr == nil {
				fmt.Fprintf(app.stdout, "Recording failed, saved a still frame to %s\n", path)
			} else {
				app.logger.Warn().Err(stillErr).Msg("still export failed")
			}
		}
		return err
	}
	bar.Complete(run.Progress())

	fmt.Fprintf(app.stdout, "Saved %s (%s, %d bytes)\n", out.Path, out.MimeType, out.Bytes)
	fmt.Fprintf(app.stdout, "Exercise: %s  Score: %d  Reps: %d\n", result.Exercise, result.FormScore, out.Reps)
	if c := result.Cadence(); c.Intervals > 0 {
		fmt.Fprintf(app.stdout, "Rep cadence: %.2fs mean, %.2fs std dev\n", c.MeanInterval, c.StdDev)
	}
	return nil
}

func (app *Application) serveCommand() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen != "" {
				app.config.Server.Listen = listen
			}
			return app.serve()
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "listen address (overrides server.listen)")
	return cmd
}

func (app *Application) serve() error {
	store, err := history.NewStore(app.config.History.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	srv := server.New(server.Config{
		Listen:        app.config.Server.Listen,
		InputDir:      app.config.Server.InputDir,
		RunsPerMinute: app.config.Server.RunsPerMinute,
		FallbackStill: app.config.Pipeline.FallbackStill,
		Run:           annotate.OptionsFromConfig(app.config),
	}, server.Deps{
		Deps: annotate.Deps{
			Encoder: recording.NewFFmpegEncoder(app.config.Recording.FFmpegPath),
		},
		History: store,
	})
	return srv.ListenAndServe(app.ctx)
}

func (app *Application) historyCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List finished runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.history(limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	return cmd
}

func (app *Application) history(limit int) error {
	store, err := history.NewStore(app.config.History.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.List(app.ctx, limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(app.stdout, "No runs recorded")
		return nil
	}

	tw := tabwriter.NewWriter(app.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FINISHED\tLABEL\tSTATE\tREPS\tSCORE\tOUTPUT")
	for _, e := range entries {
		output := e.OutputPath
		if e.Error != "" {
			output = e.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
			e.FinishedAt.Local().Format(time.DateTime), e.Label, e.State, e.RepCount, e.FormScore, output)
	}
	return tw.Flush()
}

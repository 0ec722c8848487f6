package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"leemiv/internal/explorer"
	"leemiv/pkg/config"
	"leemiv/pkg/ivexport"
	"leemiv/pkg/loader"
	"leemiv/pkg/session"
	"leemiv/pkg/stack"
	"leemiv/pkg/visualization"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		log.Fatalf("leemiv: %v", err)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "leemiv",
		Short:         "Interactive LEEM I(V) curve extraction",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "experiment.yaml", "experiment config file")

	root.AddCommand(newInitConfigCmd())
	root.AddCommand(newInfoCmd(&configPath))
	root.AddCommand(newCurveCmd(&configPath))
	root.AddCommand(newFramesCmd(&configPath))
	root.AddCommand(newExploreCmd(&configPath))
	return root
}

// experiment holds a validated config and the stack it describes
type experiment struct {
	cfg *config.Config
	stk *stack.ImageStack
}

func loadExperiment(ctx context.Context, configPath string) (*experiment, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	axis, err := cfg.Axis()
	if err != nil {
		return nil, err
	}
	params, err := cfg.LoaderParams(log.Default())
	if err != nil {
		return nil, err
	}

	start := time.Now()
	stk, err := loader.New(params).Load(ctx, axis)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", params.Dir, err)
	}
	if cfg.Output.Verbose {
		log.Printf("Loaded %s in %.2f seconds", stk, time.Since(start).Seconds())
	}
	return &experiment{cfg: cfg, stk: stk}, nil
}

func newInitConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config <path>",
		Short: "Write a default experiment config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.CreateDefaultConfigFile(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Default configuration written to %s\n", args[0])
			return nil
		},
	}
}

func newInfoCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Load the experiment and print its dimensions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			exp, err := loadExperiment(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			n, h, w := exp.stk.Dims()
			axis := exp.stk.Axis()
			sc, _ := exp.cfg.SmoothingConfig()

			out := cmd.OutOrStdout()
			mode := "LEEM, single pixel curves"
			if exp.cfg.IsLEED() {
				mode = fmt.Sprintf("LEED, box radius %d px", exp.cfg.BoxRadius())
			}
			fmt.Fprintf(out, "Type:       %s\n", mode)
			fmt.Fprintf(out, "Frames:     %d\n", n)
			fmt.Fprintf(out, "Frame size: %d x %d px\n", w, h)
			fmt.Fprintf(out, "Energy:     %.2f to %.2f eV\n", axis.Min(), axis.Max())
			fmt.Fprintf(out, "Smoothing:  %s\n", sc)
			if fit, changed := sc.FitTo(n); changed {
				fmt.Fprintf(out, "Warning:    window %d exceeds %d frames; previews use %s\n", sc.Window, n, fit)
			}

			// Mean intensity of the first and last frames
			for _, i := range []int{0, n - 1} {
				f, _ := exp.stk.Frame(i)
				d := f.Dense()
				fmt.Fprintf(out, "Frame %d:   E=%.2f eV mean=%.1f\n", i, f.Energy(), stat.Mean(d.RawMatrix().Data, nil))
			}
			return nil
		},
	}
}

func newCurveCmd(configPath *string) *cobra.Command {
	var x, y int
	var smooth bool
	var out string

	cmd := &cobra.Command{
		Use:   "curve",
		Short: "Extract the I(V) curve of one pixel",
		RunE: func(cmd *cobra.Command, _ []string) error {
			exp, err := loadExperiment(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			sess, err := newSession(exp)
			if err != nil {
				return err
			}

			r := exp.cfg.BoxRadius()
			curve, err := sess.CommitBoxAt(x, y, r)
			if err != nil {
				return err
			}
			if smooth {
				if curve, err = sess.PreviewBoxAt(x, y, r); err != nil {
					return err
				}
			}

			v := curve.Intensities()
			mean, std := stat.MeanStdDev(v, nil)
			peak := floats.MaxIdx(v)
			log.Printf("%s: mean %.1f std %.1f, peak %.1f at %.2f eV",
				curve, mean, std, v[peak], curve.At(peak).Energy)

			if out == "" {
				return ivexport.Write(cmd.OutOrStdout(), curve)
			}
			if err := ivexport.WriteFile(out, curve); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Curve written to %s\n", out)
			return nil
		},
	}
	cmd.Flags().IntVar(&x, "x", 0, "pixel column")
	cmd.Flags().IntVar(&y, "y", 0, "pixel row")
	cmd.Flags().BoolVar(&smooth, "smooth", false, "apply the configured smoothing")
	cmd.Flags().StringVar(&out, "out", "", "output file (default stdout)")
	return cmd
}

func newFramesCmd(configPath *string) *cobra.Command {
	var axis, outDir string

	cmd := &cobra.Command{
		Use:   "frames",
		Short: "Save energy frames or energy cuts as PNG images",
		RunE: func(cmd *cobra.Command, _ []string) error {
			exp, err := loadExperiment(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			count, err := visualization.NewViewer(exp.stk).SaveSliceSequence(axis, outDir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %d images to %s\n", count, outDir)
			return nil
		},
	}
	cmd.Flags().StringVar(&axis, "axis", "e", "slice axis: e (energy frames), x or y (energy cuts)")
	cmd.Flags().StringVar(&outDir, "out", "frames", "output directory")
	return cmd
}

func newExploreCmd(configPath *string) *cobra.Command {
	var outDir, outName string
	var smoothExport bool

	cmd := &cobra.Command{
		Use:   "explore",
		Short: "Explore I(V) curves interactively in the terminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			exp, err := loadExperiment(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			sess, err := newSession(exp)
			if err != nil {
				return err
			}
			return explorer.Run(cmd.Context(), sess, explorer.Options{
				Interval:     exp.cfg.Interval(),
				OutDir:       outDir,
				OutName:      outName,
				SmoothExport: smoothExport,
				BoxRadius:    exp.cfg.BoxRadius(),
			})
		},
	}
	cmd.Flags().StringVar(&outDir, "out", ".", "directory for exported curves")
	cmd.Flags().StringVar(&outName, "name", "iv", "file name prefix for exported curves")
	cmd.Flags().BoolVar(&smoothExport, "smooth-export", false, "smooth exported curves")
	return cmd
}

// newSession loads exp into a session using its configured smoothing.
// The session fits a window longer than the stack; that is logged.
func newSession(exp *experiment) (*session.Session, error) {
	sc, err := exp.cfg.SmoothingConfig()
	if err != nil {
		return nil, err
	}

	sess, err := session.New(session.Options{
		Smoothing: &sc,
		CacheSize: exp.cfg.Interaction.PreviewCacheSize,
	})
	if err != nil {
		return nil, err
	}
	if err := sess.Load(exp.stk); err != nil {
		return nil, err
	}
	if active := sess.Smoothing(); active != sc {
		log.Printf("Smoothing window %d exceeds %d frames; using %s", sc.Window, exp.stk.Len(), active)
	}
	return sess, nil
}

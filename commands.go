package visionkit

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/docker/go-units"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// NewCommand creates a Cobra command tree for model acquisition.
// The returned command should be added to a parent CLI's root command.
//
// Commands provided:
//   - models load <name/version>
//   - models clear <name/version> [--artifact]
//   - models info <name/version>
//   - models path <name/version>
//   - models prune [--max-age]
//
// Global flags: --json, --quiet, --verbose
func NewCommand(cfg Config, opts ...LoaderOption) *cobra.Command {
	var (
		jsonOutput bool
		quiet      bool
		verbose    bool
	)

	// Loader will be created in PersistentPreRunE
	var ldr Loader

	// progress is set by the load command before it calls Load.
	var progress func(LoadProgress)

	cmd := &cobra.Command{
		Use:   "models",
		Short: "Fetch and cache vision models",
		Long:  "Fetch, compile, install and cache vision models from the model-hosting service.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Skip loader creation for help commands
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}

			lopts := append(append([]LoaderOption{}, opts...), WithProgress(func(p LoadProgress) {
				if progress != nil {
					progress(p)
				}
			}))

			var err error
			ldr, err = NewLoader(cfg, lopts...)
			if err != nil {
				return fmt.Errorf("failed to initialize loader: %w", err)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if ldr == nil {
				return nil
			}
			return ldr.Close()
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	cmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-essential output")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	cmd.AddCommand(loadCmd(&ldr, &progress, &jsonOutput, &quiet, &verbose))
	cmd.AddCommand(clearCmd(&ldr, &quiet))
	cmd.AddCommand(infoCmd(&ldr, &jsonOutput))
	cmd.AddCommand(pathCmd(&ldr))
	cmd.AddCommand(pruneCmd(&ldr, &quiet))

	return cmd
}

// parseIdentityArgs accepts "name/version" or "name version".
func parseIdentityArgs(args []string) (ModelIdentity, error) {
	return ParseModelIdentity(strings.Join(args, " "))
}

func loadCmd(ldr *Loader, progress *func(LoadProgress), jsonOutput, quiet, verbose *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "load <name/version>",
		Short: "Acquire a model and report its variant",
		Long:  "Load a model from the local cache, acquiring it from the service if it is missing.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			id, err := parseIdentityArgs(args)
			if err != nil {
				return err
			}

			if !*quiet && !*jsonOutput {
				var (
					mu        sync.Mutex
					started   time.Time
					rendering bool
				)
				*progress = func(p LoadProgress) {
					mu.Lock()
					defer mu.Unlock()

					if p.Phase == "download" && p.BytesCompleted > 0 {
						if !rendering {
							started = time.Now()
							rendering = true
							fmt.Fprint(out, "\x1b[?25l")
						}
						renderProgress(out, p.BytesCompleted, p.BytesTotal, started)
						return
					}
					if rendering {
						fmt.Fprint(out, "\x1b[?25h\n")
						rendering = false
					}
					if p.Phase == "download" {
						return
					}
					if *verbose || p.Phase == "metadata" {
						fmt.Fprintf(out, "%s %s (attempt %d)...\n", phaseLabel(p.Phase), id, p.Attempt)
					}
				}
			}

			res, err := (*ldr).Load(ctx, id)
			if err != nil {
				return err
			}

			if *jsonOutput {
				return outputLoadResult(out, id, (*ldr).ArtifactPath(id), res)
			}
			if !*quiet {
				source := "service"
				if res.FromCache {
					source = "cache"
				}
				color.New(color.FgGreen).Fprintf(out, "Loaded %s", res.DisplayName)
				fmt.Fprintf(out, " (%s, %s) from %s\n", res.ModelType, res.Variant, source)
			}
			return nil
		},
	}
}

func phaseLabel(phase string) string {
	switch phase {
	case "metadata":
		return "Resolving"
	case "unpack":
		return "Unpacking"
	case "compile":
		return "Compiling"
	case "install":
		return "Installing"
	default:
		return "Processing"
	}
}

func clearCmd(ldr *Loader, quiet *bool) *cobra.Command {
	var (
		artifact bool
		yes      bool
	)

	cmd := &cobra.Command{
		Use:   "clear <name/version>",
		Short: "Clear a cached model",
		Long:  "Remove the cached record of a model. Use --artifact to also delete the installed model.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := parseIdentityArgs(args)
			if err != nil {
				return err
			}

			if !artifact {
				if err := (*ldr).ClearCache(ctx, id); err != nil {
					return err
				}
				if !*quiet {
					fmt.Fprintf(cmd.OutOrStdout(), "Cleared cache for %s\n", id)
				}
				return nil
			}

			// Confirmation prompt
			if !yes {
				fmt.Fprintf(cmd.OutOrStdout(), "Remove %s and its installed model? [y/N]: ", id)
				if !confirmPrompt(cmd.InOrStdin()) {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
					return nil
				}
			}

			if err := (*ldr).RemoveArtifact(ctx, id); err != nil {
				return err
			}
			if !*quiet {
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", id)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&artifact, "artifact", false, "Also delete the installed model")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation prompt")
	return cmd
}

func infoCmd(ldr *Loader, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "info <name/version>",
		Short: "Show cached model information",
		Long:  "Show the cached metadata of an installed model.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := parseIdentityArgs(args)
			if err != nil {
				return err
			}

			rec, ok := (*ldr).Cached(ctx, id)
			if !ok {
				return fmt.Errorf("%w: %s", ErrNotInstalled, id)
			}
			return outputRecord(cmd.OutOrStdout(), id, (*ldr).ArtifactPath(id), rec, *jsonOutput)
		},
	}
}

func pathCmd(ldr *Loader) *cobra.Command {
	return &cobra.Command{
		Use:   "path <name/version>",
		Short: "Print path to installed model",
		Long:  "Print the filesystem path of an installed compiled model.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseIdentityArgs(args)
			if err != nil {
				return err
			}

			path := (*ldr).ArtifactPath(id)
			if !exists(path) {
				return fmt.Errorf("%w: %s", ErrNotInstalled, id)
			}

			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

func pruneCmd(ldr *Loader, quiet *bool) *cobra.Command {
	var (
		maxAge time.Duration
		yes    bool
	)

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Clear leftover downloads",
		Long:  "Remove downloads and extraction directories left in the scratch directory by interrupted loads.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Confirmation prompt
			if !yes {
				fmt.Fprintf(cmd.OutOrStdout(), "Remove scratch files older than %s? [y/N]: ", formatDuration(maxAge))
				if !confirmPrompt(cmd.InOrStdin()) {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
					return nil
				}
			}

			n, err := (*ldr).PruneScratch(maxAge)
			if err != nil {
				return err
			}

			if !*quiet {
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d scratch entries.\n", n)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", ScratchMaxAge, "Only remove entries older than this")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation prompt")
	return cmd
}

// confirmPrompt reads from stdin and returns true only if the user types 'y' or 'Y'.
// Returns false for empty input or any other response (default is no).
func confirmPrompt(r io.Reader) bool {
	scanner := bufio.NewScanner(r)
	if scanner.Scan() {
		response := strings.TrimSpace(strings.ToLower(scanner.Text()))
		return response == "y" || response == "yes"
	}
	return false
}

// Output helpers

// loadOutput is the --json form of a load.
type loadOutput struct {
	Model       string `json:"model"`
	DisplayName string `json:"name"`
	ModelType   string `json:"modelType"`
	Variant     string `json:"variant"`
	Path        string `json:"path"`
	FromCache   bool   `json:"fromCache"`
}

func outputLoadResult(w io.Writer, id ModelIdentity, path string, res LoadResult) error {
	if res.Model != nil {
		path = res.Model.Path()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(loadOutput{
		Model:       id.String(),
		DisplayName: res.DisplayName,
		ModelType:   res.ModelType,
		Variant:     res.Variant.String(),
		Path:        path,
		FromCache:   res.FromCache,
	})
}

func outputRecord(w io.Writer, id ModelIdentity, path string, rec CachedModelRecord, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}

	size := "missing"
	if n, err := diskUsage(path); err == nil {
		size = units.BytesSize(float64(n))
	}

	fmt.Fprintf(w, "Model:        %s\n", id)
	fmt.Fprintf(w, "Name:         %s\n", rec.DisplayName)
	fmt.Fprintf(w, "Type:         %s (%s)\n", rec.ModelType, ClassifyModelType(rec.ModelType))
	fmt.Fprintf(w, "Classes:      %d\n", len(rec.ClassLabels))
	fmt.Fprintf(w, "Size:         %s\n", size)
	fmt.Fprintf(w, "Path:         %s\n", path)

	if len(rec.ClassLabels) > 0 {
		fmt.Fprintln(w, "\nClasses:")
		for _, label := range rec.ClassLabels {
			if c, ok := rec.ColorMap[label]; ok {
				fmt.Fprintf(w, "  %s (%s)\n", label, c)
				continue
			}
			fmt.Fprintf(w, "  %s\n", label)
		}
	}
	return nil
}

// renderProgress renders the progress bar to the writer.
// Format: Downloading [============>                 ] 45% (5.2MiB/s, elapsed: 30s, remaining: 2m 15s)
// When total is unknown only the byte count and speed are shown.
func renderProgress(w io.Writer, current, total int64, startTime time.Time) {
	elapsed := time.Since(startTime)

	var speed float64
	if elapsed.Seconds() > 0 && current > 0 {
		speed = float64(current) / elapsed.Seconds()
	}

	if total <= 0 {
		fmt.Fprintf(w, "\r\x1b[KDownloading %s (%s, elapsed: %s)",
			units.BytesSize(float64(current)), formatSpeed(speed), formatDuration(elapsed))
		return
	}

	pct := float64(current) / float64(total) * 100

	var remaining time.Duration
	if speed > 0 && current < total {
		remaining = time.Duration(float64(total-current)/speed) * time.Second
	}

	// Build progress bar
	const barWidth = 30
	filled := int(pct / 100 * float64(barWidth))
	if filled > barWidth {
		filled = barWidth
	}

	var bar string
	if filled >= barWidth {
		bar = strings.Repeat("=", barWidth)
	} else if filled > 0 {
		bar = strings.Repeat("=", filled) + ">" + strings.Repeat(" ", barWidth-filled-1)
	} else {
		bar = ">" + strings.Repeat(" ", barWidth-1)
	}

	// Format and print (using \r to overwrite, \x1b[K to clear to end of line)
	fmt.Fprintf(w, "\r\x1b[KDownloading [%s] %.0f%% (%s, elapsed: %s, remaining: %s)",
		bar, pct, formatSpeed(speed), formatDuration(elapsed), formatDuration(remaining))
}

// formatSpeed formats bytes per second using binary units.
func formatSpeed(bytesPerSec float64) string {
	return units.BytesSize(bytesPerSec) + "/s"
}

// formatDuration formats a duration as human-readable text (e.g., "5s", "2m 30s", "1h 5m").
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "0s"
	}
	d = d.Round(time.Second)

	hours := int(d.Hours())
	mins := int(d.Minutes()) % 60
	secs := int(d.Seconds()) % 60

	if hours > 0 {
		if mins > 0 {
			return fmt.Sprintf("%dh %dm", hours, mins)
		}
		return fmt.Sprintf("%dh", hours)
	}
	if mins > 0 {
		if secs > 0 {
			return fmt.Sprintf("%dm %ds", mins, secs)
		}
		return fmt.Sprintf("%dm", mins)
	}
	return fmt.Sprintf("%ds", secs)
}

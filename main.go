package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version information (set by build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"

	// CLI flags
	outputsJSON   bool
	verbose       bool
	configFile    string
	target        string
	language      string
	mode          string
	maxIterations int
	listOnly      bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "shakeout [flags] <file>",
	Short: "🌳 Shake one export out of a source file",
	Long: `Shakeout reduces a TypeScript, TSX or Go source file to a single exported
declaration and the code it needs.

Re-exports are dropped, other unreferenced exports are deleted, and
identifiers that become unused are swept until nothing else can go.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	Example: `  # Extract the first export of a file
  shakeout components.tsx

  # Extract a named export
  shakeout --target Box components.tsx

  # List the available exports
  shakeout --list components.tsx

  # Output JSON for tooling
  shakeout --json -t Box components.tsx

  # Remove dead cycles too
  shakeout --mode closure -t Handler server.go`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         runExtract,
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is $HOME/.shakeout.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&target, "target", "t", "", "export to keep (default: first export)")
	rootCmd.PersistentFlags().StringVarP(&language, "language", "l", "", "typescript, tsx or go (default: detected from the file extension)")
	rootCmd.PersistentFlags().StringVar(&mode, "mode", string(ModeRefCount), "pruning mode: refcount or closure")
	rootCmd.PersistentFlags().IntVar(&maxIterations, "max-iterations", 0, "fixed-point iteration cap (default: declaration count + 2)")
	rootCmd.PersistentFlags().BoolVar(&outputsJSON, "json", false, "output results in JSON format")

	// Extraction flags
	rootCmd.Flags().BoolVar(&listOnly, "list", false, "only list the available exports")

	// Bind flags to viper
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("target", rootCmd.PersistentFlags().Lookup("target"))
	viper.BindPFlag("language", rootCmd.PersistentFlags().Lookup("language"))
	viper.BindPFlag("mode", rootCmd.PersistentFlags().Lookup("mode"))
	viper.BindPFlag("max-iterations", rootCmd.PersistentFlags().Lookup("max-iterations"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(formatCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(batchCmd)
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	// a missing .env is fine
	_ = godotenv.Load()

	if configFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(configFile)
	} else {
		// Find home directory
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".shakeout" (without extension)
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".shakeout")
	}

	// Environment variable support
	viper.SetEnvPrefix("SHAKEOUT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err == nil && viper.GetBool("verbose") {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadConfig creates the extraction config from flags and viper settings
func loadConfig() (*Config, error) {
	lang, err := ParseLanguage(viper.GetString("language"))
	if err != nil {
		return nil, err
	}
	m, err := ParseMode(viper.GetString("mode"))
	if err != nil {
		return nil, err
	}

	return &Config{
		Target:        strings.TrimSpace(viper.GetString("target")),
		Language:      lang,
		Mode:          m,
		OutputJSON:    viper.GetBool("json"),
		Verbose:       viper.GetBool("verbose"),
		MaxIterations: viper.GetInt("max-iterations"),
	}, nil
}

func runExtract(cmd *cobra.Command, args []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	config.SourcePath = args[0]
	config.ListOnly = listOnly

	source, err := LoadSource(config.SourcePath, config.Language)
	if err != nil {
		return err
	}
	snap := source.Current()

	extractor := NewExtractor(config)
	extractor.SetLogOutput(cmd.ErrOrStderr())
	out := cmd.OutOrStdout()

	if config.Verbose {
		fmt.Fprintf(cmd.ErrOrStderr(), "🔍 Reading %s (%s)\n", snap.Path, snap.Language)
	}

	targets, err := extractor.ListTargets(snap.Path, snap.Language, snap.Text)
	if err != nil {
		return err
	}

	if config.ListOnly {
		if config.OutputJSON {
			return outputJSON(out, map[string]any{"file": snap.Path, "targets": targets})
		}
		PrintTargets(out, targets)
		return nil
	}

	result, err := extractor.Extract(ExtractionRequest{
		Filename: snap.Path,
		Source:   snap.Text,
		Target:   extractor.DefaultTarget(targets),
		Language: snap.Language,
		Mode:     config.Mode,
	})
	if err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}

	// Output results
	if config.OutputJSON {
		return outputJSON(out, result)
	}

	PrintResults(out, result)
	return nil
}

// Format command
var formatWrite bool

var formatCmd = &cobra.Command{
	Use:   "format <file>",
	Short: "Print a source file the way extractions are rendered",
	Long:  "Parse a source file and render it without pruning anything. Useful to diff an extraction against its input.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lang, err := ParseLanguage(viper.GetString("language"))
		if err != nil {
			return err
		}

		path := args[0]
		src, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading source: %w", err)
		}
		formatted, err := Format(path, lang, src)
		if err != nil {
			return err
		}

		if formatWrite {
			if err := os.WriteFile(path, formatted, 0644); err != nil {
				return fmt.Errorf("writing %s: %w", path, err)
			}
			return nil
		}
		_, err = cmd.OutOrStdout().Write(formatted)
		return err
	},
}

// Serve command
var serveCmd = &cobra.Command{
	Use:   "serve <file>",
	Short: "Show the source and its extraction side by side in a browser",
	Long: `Start a web server with one button per export. Selecting an export shows the
extraction next to the original. With --watch the page follows edits to the file.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig()
		if err != nil {
			return err
		}
		config.SourcePath = args[0]

		source, err := LoadSource(config.SourcePath, config.Language)
		if err != nil {
			return err
		}

		// the server logs through the log package; progress lines would interleave
		config.Verbose = false
		extractor := NewExtractor(config)

		srv, err := NewServer(viper.GetString("serve.addr"), source, extractor, viper.GetInt("cache.size"))
		if err != nil {
			return fmt.Errorf("creating server: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if viper.GetBool("serve.watch") {
			if err := source.Watch(ctx, 200*time.Millisecond); err != nil {
				return err
			}
		}

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start()
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	},
}

// MCP command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve extract_export and list_exports as MCP tools over stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig()
		if err != nil {
			return err
		}
		// stdout carries the protocol
		config.Verbose = false

		if err := server.ServeStdio(NewMCPServer(NewExtractor(config))); err != nil {
			return fmt.Errorf("mcp server: %w", err)
		}
		return nil
	},
}

// Batch command
var batchCmd = &cobra.Command{
	Use:   "batch <dir>",
	Short: "Extract every export of every matching file under a directory",
	Long: `Walk a directory and write one file per export to
<out>/<relative path without extension>/<export><extension>.
Failures are reported per file and do not stop the run.`,
	Example: `  # Split every component into its own file
  shakeout batch --include '**.tsx' --out split ./src

  # Extract one export wherever it exists
  shakeout batch -t Box --out boxes ./src`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig()
		if err != nil {
			return err
		}
		config.Verbose = false

		opts := BatchOptions{
			Root:    args[0],
			OutDir:  viper.GetString("batch.out"),
			Include: viper.GetStringSlice("batch.include"),
			Exclude: viper.GetStringSlice("batch.exclude"),
			Target:  config.Target,
			Workers: viper.GetInt("batch.workers"),
		}
		if !config.OutputJSON {
			opts.Progress = cmd.ErrOrStderr()
		}

		report, err := RunBatch(NewExtractor(config), opts)
		if err != nil {
			return fmt.Errorf("batch failed: %w", err)
		}

		out := cmd.OutOrStdout()
		if config.OutputJSON {
			return outputJSON(out, report)
		}

		fmt.Fprintf(out, "✅ Wrote %d file(s) from %d source file(s)", len(report.Written), report.Files)
		if report.Skipped > 0 {
			fmt.Fprintf(out, ", %d skipped", report.Skipped)
		}
		fmt.Fprintln(out)
		for _, failure := range report.Failures {
			fmt.Fprintf(out, "  ⚠️  %s: %s\n", failure.Path, failure.Error)
		}
		if len(report.Failures) > 0 {
			return fmt.Errorf("%d file(s) failed", len(report.Failures))
		}
		return nil
	},
}

func init() {
	formatCmd.Flags().BoolVarP(&formatWrite, "write", "w", false, "write the result back to the file")

	serveCmd.Flags().String("addr", "127.0.0.1:8080", "address to listen on")
	serveCmd.Flags().Bool("watch", false, "reload the page when the file changes")
	serveCmd.Flags().Int("cache-size", defaultCacheSize, "number of extractions to cache")
	viper.BindPFlag("serve.addr", serveCmd.Flags().Lookup("addr"))
	viper.BindPFlag("serve.watch", serveCmd.Flags().Lookup("watch"))
	viper.BindPFlag("cache.size", serveCmd.Flags().Lookup("cache-size"))

	batchCmd.Flags().StringP("out", "o", "extracted", "output directory")
	batchCmd.Flags().StringSlice("include", defaultBatchInclude, "glob patterns of files to process")
	batchCmd.Flags().StringSlice("exclude", defaultBatchExclude, "glob patterns of files to skip")
	batchCmd.Flags().Int("workers", runtime.NumCPU(), "number of parallel workers")
	viper.BindPFlag("batch.out", batchCmd.Flags().Lookup("out"))
	viper.BindPFlag("batch.include", batchCmd.Flags().Lookup("include"))
	viper.BindPFlag("batch.exclude", batchCmd.Flags().Lookup("exclude"))
	viper.BindPFlag("batch.workers", batchCmd.Flags().Lookup("workers"))

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}

// Version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print detailed version information including build metadata",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Shakeout %s\n", version)
		fmt.Fprintf(out, "Commit: %s\n", commit)
		fmt.Fprintf(out, "Built: %s\n", date)
		fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
	},
}

// Config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
	Long:  "Manage Shakeout configuration settings",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the current configuration values from all sources",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Current configuration:")
		fmt.Fprintf(out, "Config file: %s\n", viper.ConfigFileUsed())
		fmt.Fprintf(out, "Target: %s\n", viper.GetString("target"))
		fmt.Fprintf(out, "Language: %s\n", viper.GetString("language"))
		fmt.Fprintf(out, "Mode: %s\n", viper.GetString("mode"))
		fmt.Fprintf(out, "Max iterations: %d\n", viper.GetInt("max-iterations"))
		fmt.Fprintf(out, "JSON output: %v\n", viper.GetBool("json"))
		fmt.Fprintf(out, "Verbose: %v\n", viper.GetBool("verbose"))
		fmt.Fprintf(out, "Serve address: %s\n", viper.GetString("serve.addr"))
		fmt.Fprintf(out, "Serve watch: %v\n", viper.GetBool("serve.watch"))
		fmt.Fprintf(out, "Cache size: %d\n", viper.GetInt("cache.size"))
		fmt.Fprintf(out, "Batch output: %s\n", viper.GetString("batch.out"))
		fmt.Fprintf(out, "Batch include: %v\n", viper.GetStringSlice("batch.include"))
		fmt.Fprintf(out, "Batch exclude: %v\n", viper.GetStringSlice("batch.exclude"))
		fmt.Fprintf(out, "Batch workers: %d\n", viper.GetInt("batch.workers"))
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration file",
	Long:  "Create a default configuration file in the home directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}

		configPath := filepath.Join(home, ".shakeout.yaml")
		if err := writeDefaultConfig(configPath); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "✅ Created config file at %s\n", configPath)
		return nil
	},
}

const defaultConfig = `# Shakeout configuration file

# Output format
json: false
verbose: false

# Extraction options
# target: Box
# language: tsx
mode: refcount
# max-iterations: 50

# Web presentation
serve:
  addr: "127.0.0.1:8080"
  watch: false
cache:
  size: 256

# Batch mode
batch:
  out: extracted
  include:
    - "**.{ts,tsx,mts,cts,js,jsx,mjs,cjs,go}"
  exclude:
    - "{node_modules,vendor,.git}/**"
    - "**/{node_modules,vendor,.git}/**"
    - "**.d.ts"
    - "**_test.go"
`

// writeDefaultConfig creates a config file, refusing to overwrite one
func writeDefaultConfig(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config file already exists at %s", configPath)
	}
	if err := os.WriteFile(configPath, []byte(defaultConfig), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

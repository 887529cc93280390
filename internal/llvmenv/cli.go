package llvmenv

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"
)

// version is overridden at build time.
var version = "dev"

// Execute wires up the CLI and runs it. Flag parsing and exit-code mapping
// live here and nowhere else.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := LoadConfig()
	if err != nil {
		colError.Println(err)
		os.Exit(1)
	}
	ex := NewExecutor(ctx)

	if err := newRootCmd(cfg, ex).ExecuteContext(ctx); err != nil {
		colError.Println(err)
		os.Exit(1)
	}
}

func newRootCmd(cfg *Config, ex *Executor) *cobra.Command {
	root := &cobra.Command{
		Use:           "llvmenv",
		Short:         "Manage multiple LLVM/Clang builds",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			ex.Quiet = cfg.Quiet
		},
	}
	root.PersistentFlags().BoolVarP(&cfg.Quiet, "quiet", "q", false, "suppress progress and informational output")

	root.AddCommand(
		newInitCmd(cfg),
		newBuildsCmd(cfg),
		newEntriesCmd(cfg),
		newBuildEntryCmd(cfg, ex),
		newCurrentCmd(cfg),
		newPrefixCmd(cfg),
		newVersionCmd(cfg, ex),
		newGlobalCmd(cfg),
		newLocalCmd(cfg),
		newArchiveCmd(cfg, ex),
		newExpandCmd(cfg, ex),
		newEditCmd(cfg, ex),
		newZshCmd(),
	)
	return root
}

func newInitCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize llvmenv",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return InitConfig(cfg)
		},
	}
}

func newBuildsCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "builds",
		Short: "List usable builds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			builds, err := NewRegistry(cfg).Builds()
			if err != nil {
				return err
			}
			width := 0
			for _, b := range builds {
				if len(b.Name) > width {
					width = len(b.Name)
				}
			}
			for _, b := range builds {
				fmt.Printf("%-*s: %s\n", width, b.Name, b.Prefix)
			}
			return nil
		},
	}
}

func newEntriesCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "entries",
		Short: "List entries to be built",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := LoadEntries(cfg)
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Println(e.Name)
			}
			return nil
		},
	}
}

func newBuildEntryCmd(cfg *Config, ex *Executor) *cobra.Command {
	var (
		update bool
		clean  bool
		nproc  int
	)
	cmd := &cobra.Command{
		Use:   "build-entry NAME",
		Short: "Fetch, build and install an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entry, err := LoadEntry(cfg, args[0])
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirs(); err != nil {
				return err
			}
			fetcher := NewFetcher(cfg, ex)
			if err := entry.Checkout(fetcher); err != nil {
				return err
			}
			if update {
				if err := entry.Update(fetcher); err != nil {
					return err
				}
			}
			if clean {
				if err := entry.CleanBuild(cfg); err != nil {
					return err
				}
			}
			if nproc <= 0 {
				nproc = runtime.NumCPU()
			}
			return entry.Build(cfg, ex, nproc)
		},
	}
	cmd.Flags().BoolVarP(&update, "update", "u", false, "update source before building")
	cmd.Flags().BoolVarP(&clean, "clean", "c", false, "clean build directory before building")
	cmd.Flags().IntVarP(&nproc, "nproc", "j", 0, "number of parallel build jobs (default: all CPUs)")
	return cmd
}

func seekCwd(cfg *Config) (Build, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return Build{}, err
	}
	return NewResolver(cfg, NewRegistry(cfg)).Seek(cwd), nil
}

func newCurrentCmd(cfg *Config) *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "current",
		Short: "Show the name of the current build",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := seekCwd(cfg)
			if err != nil {
				return err
			}
			fmt.Println(b.Name)
			if verbose && b.MarkerPath() != "" {
				fmt.Fprintf(os.Stderr, "set by %s\n", b.MarkerPath())
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "also report which marker selected the build")
	return cmd
}

func newPrefixCmd(cfg *Config) *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "prefix",
		Short: "Show the prefix of the current build",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := seekCwd(cfg)
			if err != nil {
				return err
			}
			fmt.Println(b.Prefix)
			if verbose && b.MarkerPath() != "" {
				fmt.Fprintf(os.Stderr, "set by %s\n", b.MarkerPath())
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "also report which marker selected the build")
	return cmd
}

func newVersionCmd(cfg *Config, ex *Executor) *cobra.Command {
	var (
		name  string
		major bool
		minor bool
		patch bool
	)
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show the base version of the current build",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := NewRegistry(cfg)
			var b Build
			if name != "" {
				var err error
				if b, err = reg.Lookup(name); err != nil {
					return err
				}
			} else {
				var err error
				if b, err = seekCwd(cfg); err != nil {
					return err
				}
			}
			v, err := reg.Version(ex, b)
			if err != nil {
				return err
			}
			if !(major || minor || patch) {
				fmt.Println(v)
				return nil
			}
			if major {
				fmt.Print(v.Major)
			}
			if minor {
				fmt.Print(v.Minor)
			}
			if patch {
				fmt.Print(v.Patch)
			}
			fmt.Println()
			return nil
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "inspect this build instead of the current one")
	cmd.Flags().BoolVar(&major, "major", false, "print the major component")
	cmd.Flags().BoolVar(&minor, "minor", false, "print the minor component")
	cmd.Flags().BoolVar(&patch, "patch", false, "print the patch component")
	return cmd
}

func newGlobalCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "global NAME",
		Short: "Set the build to use (global)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := NewRegistry(cfg)
			b, err := reg.Lookup(args[0])
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirs(); err != nil {
				return err
			}
			return NewResolver(cfg, reg).SetGlobal(b)
		},
	}
}

func newLocalCmd(cfg *Config) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "local NAME",
		Short: "Set the build to use (local)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := NewRegistry(cfg)
			b, err := reg.Lookup(args[0])
			if err != nil {
				return err
			}
			dir := path
			if dir == "" {
				if dir, err = os.Getwd(); err != nil {
					return err
				}
			}
			return NewResolver(cfg, reg).SetLocal(b, dir)
		},
	}
	cmd.Flags().StringVarP(&path, "path", "p", "", "directory to mark (default: current directory)")
	return cmd
}

func newArchiveCmd(cfg *Config, ex *Executor) *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "archive NAME",
		Short: "Archive a build into NAME.tar.xz",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b := NewRegistry(cfg).FromName(args[0])
			out, err := ArchiveBuild(cfg, ex, b, verbose)
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "list files while archiving")
	return cmd
}

func newExpandCmd(cfg *Config, ex *Executor) *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "expand PATH",
		Short: "Expand an archived build into the data directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return Expand(cfg, ex, args[0], verbose)
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "list files while expanding")
	return cmd
}

func newEditCmd(cfg *Config, ex *Executor) *cobra.Command {
	return &cobra.Command{
		Use:   "edit",
		Short: "Edit the entry catalog in your editor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			editor := os.Getenv("EDITOR")
			if editor == "" {
				return fmt.Errorf("EDITOR environment variable is not set")
			}
			return ex.Run(ex.Command(editor, cfg.EntryFile()))
		},
	}
}

func newZshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "zsh",
		Short: "Print zsh integration script",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := ZshScript()
			if err != nil {
				return err
			}
			fmt.Print(script)
			return nil
		},
	}
}

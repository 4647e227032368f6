package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/javi11/pkgexpand/internal/errors"
	"github.com/javi11/pkgexpand/internal/extractor"
	"github.com/javi11/pkgexpand/internal/filter"
	"github.com/javi11/pkgexpand/internal/pathutil"
)

var (
	force           bool
	includePatterns []string
	excludePatterns []string
	stripComponents int
)

func init() {
	expandCmd := &cobra.Command{
		Use:   "expand PKG DIR",
		Short: "Write flat package entries to DIR",
		Args:  exactArgs(2),
		RunE:  runExpand(false),
	}
	expandFullCmd := &cobra.Command{
		Use:   "expand-full PKG DIR",
		Short: "Fully expand package contents to DIR",
		Long: `Like expand, but entries named Payload or Scripts are treated as
nested archives and recursively expanded instead of written out as
opaque files. A PKG of '-' reads the package from stdin.`,
		Args: exactArgs(2),
		RunE: runExpand(true),
	}

	for _, c := range []*cobra.Command{expandCmd, expandFullCmd} {
		c.Flags().BoolVarP(&force, "force", "f", false, "overwrite existing outputs")
		c.Flags().StringArrayVar(&includePatterns, "include", nil, "only extract paths matching PATTERN (repeatable)")
		c.Flags().StringArrayVar(&excludePatterns, "exclude", nil, "skip paths matching PATTERN (repeatable)")
		c.Flags().IntVar(&stripComponents, "strip-components", 0, "strip N leading path components from entry names")
		rootCmd.AddCommand(c)
	}
}

// exactArgs is cobra.ExactArgs with the error classified as a usage
// failure so main can exit with the distinct status.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return errors.NewUsageError(fmt.Sprintf("%s requires a package path and an output directory", cmd.Name()))
		}
		return nil
	}
}

func runExpand(full bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		pkgPath, outDir := args[0], args[1]

		if stripComponents < 0 {
			return errors.NewUsageError("--strip-components must be >= 0")
		}
		patterns, err := filter.NewPatternSet(includePatterns, excludePatterns)
		if err != nil {
			return err
		}

		if err := pathutil.CheckDirectoryWritable(outDir); err != nil {
			return errors.NewResourceError("output directory", err)
		}

		if pkgPath == "-" {
			spooled, cleanup, err := spoolStdin()
			if err != nil {
				return err
			}
			defer cleanup()
			pkgPath = spooled
		}

		x := extractor.New(extractor.Options{
			ExpandNested: full,
			Markers:      runtimeConfig.NestedMarkers,
			Write: extractor.WriteOptions{
				Force:               force,
				PreservePermissions: runtimeConfig.PreservePermissions,
				PreserveTimes:       runtimeConfig.PreserveTimes,
			},
		})
		return x.Expand(pkgPath, outDir, patterns, stripComponents)
	}
}

// spoolStdin copies stdin to a temporary file so the outer container can
// be opened with random access.
func spoolStdin() (string, func(), error) {
	fs := afero.NewOsFs()
	tmp, err := afero.TempFile(fs, "", "pkgexpand-stdin-*")
	if err != nil {
		return "", nil, errors.NewResourceError("create stdin spool file", err)
	}
	name := tmp.Name()
	cleanup := func() { fs.Remove(name) }

	if _, err := io.Copy(tmp, os.Stdin); err != nil {
		tmp.Close()
		cleanup()
		return "", nil, errors.NewResourceError("spool stdin", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", nil, errors.NewResourceError("close stdin spool file", err)
	}
	return name, cleanup, nil
}

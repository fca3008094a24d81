package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chenyanchen/hotswap"
	"github.com/chenyanchen/hotswap/shell"
	"github.com/chenyanchen/hotswap/watch"
)

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	Type  string // type to derive; defaults to the unit's stem
	App   bool   // rewrite the unit as an application delegate
	Print bool
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check <source>",
		Short: "Compile a source unit once without running it",
		Long: `Preprocess a source unit (header plus optional _impl file), declare its
base generation and a derived first generation, and report the result.

Example:
  hotswap check Ship.go --print
  hotswap check Game.go --app`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return checkUnit(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.Type, "type", "t", "", "type to derive (defaults to the file stem)")
	cmd.Flags().BoolVar(&opts.App, "app", false, "treat the unit as an application delegate")
	cmd.Flags().BoolVarP(&opts.Print, "print", "p", false, "print the generated sources")

	return cmd
}

func checkUnit(cmd *cobra.Command, opts *CheckOptions, path string) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg.LogLevel)
	registry, err := newRegistry(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer func() { _ = registry.Teardown() }()

	resolved := registry.ResolveSource(path)
	unit := registry.Watcher().ResolveUnit(resolved)
	header, impl, err := watch.Read(unit)
	if err != nil {
		return hotswap.NotFoundError{Path: path, Err: err}
	}

	typeName := opts.Type
	if typeName == "" {
		typeName = unit.Stem()
	}
	var src hotswap.Source
	var unitOpts hotswap.Options
	if opts.App {
		sc := shellConfig(cfg, registry, nil, path)
		sc.TypeName = typeName
		src = shell.Rewrite(sc, header, impl)
		unitOpts = sc.Options
	} else {
		src = hotswap.Preprocess(header, impl)
		unitOpts = withBackendLibraries(cfg, cfg.TypeOptions(typeName))
	}

	baseNS := hotswap.BaseNamespace(typeName)
	genNS := strings.ToLower(typeName) + "_g1"
	base := src.Wrap(baseNS)
	derived, deriveErr := hotswap.Derive(src, typeName, genNS)

	out := cmd.OutOrStdout()
	if opts.Print {
		printSource(out, baseNS, base)
		if deriveErr == nil {
			printSource(out, genNS, derived)
		}
	}

	backend, err := registry.NewBackend()
	if err != nil {
		return err
	}
	if err := hotswap.ApplyOptions(backend, resolved, unitOpts); err != nil {
		return err
	}
	if err := backend.Declare(base); err != nil {
		return hotswap.CompileError{Unit: typeName, Namespace: baseNS, Err: err}
	}
	if deriveErr != nil {
		fmt.Fprintf(out, "ok: %s compiles (no struct %s to derive)\n", unit.Header, typeName)
		return nil
	}
	if err := backend.Declare(derived); err != nil {
		return hotswap.CompileError{Unit: typeName, Namespace: genNS, Err: err}
	}
	fmt.Fprintf(out, "ok: %s compiles as %s and %s\n", unit.Header, baseNS, genNS)
	return nil
}

func printSource(w io.Writer, ns, code string) {
	fmt.Fprintf(w, "// ---- %s ----\n%s\n", ns, code)
}

package cli

import (
	"log/slog"
	"slices"

	"github.com/chenyanchen/hotswap"
	"github.com/chenyanchen/hotswap/backend/yaegi"
	"github.com/chenyanchen/hotswap/config"
	"github.com/chenyanchen/hotswap/shell"
)

func newRegistry(cfg *config.Config, logger *slog.Logger, onEvent func(hotswap.Event)) (*hotswap.Registry, error) {
	return hotswap.NewRegistry(hotswap.RegistryConfig{
		NewBackend: newBackendFactory(logger),
		AppRoot:    cfg.AppRoot,
		SearchDirs: cfg.SearchDirs,
		Logger:     logger,
		OnEvent:    onEvent,
	})
}

func newBackendFactory(logger *slog.Logger) func() (hotswap.Backend, error) {
	return yaegi.Factory(
		yaegi.WithLibrary(yaegi.ShellLibrary, yaegi.ShellSymbols),
		yaegi.WithLibrary(yaegi.HotswapLibrary, yaegi.HotswapSymbols),
		yaegi.WithLogger(logger),
	)
}

// withBackendLibraries adds the libraries every backend loads to o.
func withBackendLibraries(cfg *config.Config, o hotswap.Options) hotswap.Options {
	o.Libraries = slices.Clone(o.Libraries)
	for _, lib := range cfg.Backend.Libraries {
		if !slices.Contains(o.Libraries, lib) {
			o.Libraries = append(o.Libraries, lib)
		}
	}
	return o
}

// appOptions completes the configured app options with what a shell
// delegate needs: packages shell and hotswap, the interpreted app base, the
// host runtime and the delegate interface.
func appOptions(cfg *config.Config) hotswap.Options {
	o := withBackendLibraries(cfg, cfg.App.Options)
	for _, lib := range []string{yaegi.ShellLibrary, yaegi.HotswapLibrary} {
		if !slices.Contains(o.Libraries, lib) {
			o.Libraries = append(o.Libraries, lib)
		}
	}
	if !slices.Contains(o.Declarations, yaegi.AppBaseSource) {
		o.Declarations = append([]string{yaegi.AppBaseSource}, o.Declarations...)
	}
	o.PreloadHost = true
	if o.Interface == "" {
		o.Interface = "shell.Delegate"
		if cfg.App.TransferState {
			o.Interface = "shell.StatefulDelegate"
		}
	}
	return o
}

func shellConfig(cfg *config.Config, registry *hotswap.Registry, host shell.Host, path string) shell.Config {
	if path == "" {
		path = cfg.App.Path
	}
	return shell.Config{
		Registry:      registry,
		Host:          host,
		Path:          path,
		TypeName:      cfg.App.TypeName,
		Options:       appOptions(cfg),
		HostBase:      cfg.App.HostBase,
		ForwardBase:   yaegi.AppBaseType,
		ForwardImport: yaegi.AppBaseImport,
		TransferState: cfg.App.TransferState,
	}
}

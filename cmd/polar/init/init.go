// Package initcmder provides the init command for initializing a local .polar
// directory in the current working directory.
package initcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/polar/pkg/cliui"
	"github.com/papercomputeco/polar/pkg/config"
)

const (
	dirName    = ".polar"
	configFile = "config.toml"

	remoteTimeout = 10 * time.Second
	maxRemoteSize = 1 << 20
)

const initLongDesc string = `Initialize a new .polar/ directory in the current working directory.

Creates a local .polar/ directory that takes precedence over the default
~/.polar/ directory for configuration and the default SQLite database, and
writes a config.toml. This is useful for keeping separate catalogs per
project or deployment.

Use --preset to start from a deployment preset or a remote config.toml:
  local       SQLite catalog with a sqlite-vec similarity index
  postgres    PostgreSQL catalog with a pgvector similarity index
  qdrant      SQLite catalog, Qdrant similarity index, Kafka feed events

Examples:
  polar init
  polar init --preset postgres
  polar init --preset https://example.com/polar/config.toml`

const initShortDesc string = "Initialize a local .polar/ directory"

func NewInitCmd() *cobra.Command {
	var preset string

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd.Context(), cmd.OutOrStdout(), preset)
		},
		ValidArgsFunction: cobra.NoFileCompletions,
	}

	cmd.Flags().StringVar(&preset, "preset", "", "Deployment preset name or http(s) URL of a config.toml")
	_ = cmd.RegisterFlagCompletionFunc("preset", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return config.ValidPresetNames(), cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runInit(ctx context.Context, w io.Writer, preset string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	dir := filepath.Join(cwd, dirName)

	// Resolve the preset before touching the filesystem so a bad preset
	// leaves nothing behind.
	cfg, err := resolvePreset(ctx, preset)
	if err != nil {
		return err
	}

	info, err := os.Stat(dir)
	alreadyExists := err == nil && info.IsDir()
	if !alreadyExists {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating .polar directory: %w", err)
		}
	}

	configPath := filepath.Join(dir, configFile)
	_, statErr := os.Stat(configPath)
	configExists := statErr == nil

	// An existing config.toml is only replaced when a preset is requested.
	if !configExists || preset != "" {
		cfger, err := config.NewConfiger(dir)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if err := cfger.SaveConfig(cfg); err != nil {
			return err
		}
	}

	if alreadyExists {
		fmt.Fprintf(w, "  %s Already initialized: %s\n", cliui.SuccessMark, dir)
	} else {
		fmt.Fprintf(w, "  %s Initialized .polar directory: %s\n", cliui.SuccessMark, dir)
	}
	if preset != "" {
		fmt.Fprintf(w, "  %s Applied preset %s\n", cliui.SuccessMark, cliui.KeyStyle.Render(preset))
	}
	return nil
}

func resolvePreset(ctx context.Context, preset string) (*config.Config, error) {
	switch {
	case preset == "":
		return config.NewDefaultConfig(), nil
	case strings.HasPrefix(preset, "http://"), strings.HasPrefix(preset, "https://"):
		return fetchRemoteConfig(ctx, preset)
	default:
		return config.PresetConfig(preset)
	}
}

func fetchRemoteConfig(ctx context.Context, url string) (*config.Config, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, remoteTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching remote config: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading remote config: %w", err)
	}
	if len(data) > maxRemoteSize {
		return nil, errors.New("remote config exceeds 1 MiB")
	}

	return config.ParseConfigTOML(data)
}

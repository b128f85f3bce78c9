package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ormasoftchile/surveyd/pkg/console"
	"github.com/ormasoftchile/surveyd/pkg/tui"
	"github.com/ormasoftchile/surveyd/pkg/wizard"
)

var (
	playServer string
	playLocal  bool
	playState  string
)

var playCmd = &cobra.Command{
	Use:   "play [surveyID]",
	Short: "Take a survey in the terminal UI",
	Long: `Take a survey in the terminal UI. Progress is saved after every page
and resumed on the next run with the same survey.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPlayer(cmd, args[0], false)
	},
}

var askCmd = &cobra.Command{
	Use:   "ask [surveyID]",
	Short: "Take a survey one question at a time at a prompt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPlayer(cmd, args[0], true)
	},
}

// statePath returns the wizard state file for surveyID.
func statePath(surveyID string) (string, error) {
	if playState != "" {
		return playState, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate state dir: %w (use --state)", err)
	}
	return filepath.Join(dir, "surveyd", surveyID+".json"), nil
}

func runPlayer(cmd *cobra.Command, surveyID string, lineMode bool) error {
	if playServer == "" && !playLocal {
		return fmt.Errorf("one of --server or --local is required")
	}
	ctx, stop := signalContext()
	defer stop()

	path, err := statePath(surveyID)
	if err != nil {
		return err
	}

	var transport wizard.Transport
	if playLocal {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		svc, cl, err := buildService(ctx, cfg, zap.NewNop())
		if err != nil {
			return err
		}
		defer cl.Close()
		transport = wizard.LocalTransport{Service: svc}
	} else {
		transport = wizard.NewHTTPTransport(playServer)
	}

	ctl := wizard.New(transport, wizard.FileStore{Path: path})
	if lineMode {
		return console.New(ctl, surveyID, cmd.OutOrStdout()).Run(ctx, nil)
	}
	return tui.Run(ctx, tui.Config{Controller: ctl, SurveyID: surveyID, AltScreen: true})
}

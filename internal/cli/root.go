package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ppiankov/proposalgate/internal/logging"
	"github.com/ppiankov/proposalgate/internal/model"
	"github.com/ppiankov/proposalgate/internal/pipeline"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "proposalgate",
	Short: "Proposalgate - integrity and export gate for grant proposals",
	Long: `Proposalgate checks a grant proposal before it leaves the system.

It reports unresolved placeholders, unverified high-risk claims, paragraphs
that are not grounded in the organization's knowledge base, and funder
checklist items that no section covers, then decides whether export is
blocked, needs an attestation, or may proceed.

Every decision is written to an append-only audit log.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Display the version number and build information for Proposalgate.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("proposalgate v%s\n", pipeline.Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.proposalgate/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")

	// Bind flags to viper
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		// Search for config in home directory
		viper.AddConfigPath(filepath.Join(home, ".proposalgate"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Read in environment variables that match PROPOSALGATE_*, e.g. PROPOSALGATE_RETRIEVAL_URL
	viper.SetEnvPrefix("PROPOSALGATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setDefaults(viper.GetViper(), model.DefaultConfig())

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// setup loads the effective config and builds the logger
func setup() (*model.Config, *zap.Logger, error) {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return nil, nil, err
	}

	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	logger, err := logging.New(level, cfg.Logging.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// openPipeline loads config and wires the pipeline. The caller closes both.
func openPipeline() (*pipeline.Pipeline, *zap.Logger, error) {
	cfg, logger, err := setup()
	if err != nil {
		return nil, nil, err
	}
	p, err := pipeline.Open(cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}
	return p, logger, nil
}

func closePipeline(p *pipeline.Pipeline, logger *zap.Logger) {
	if err := p.Close(); err != nil {
		logger.Warn("close store", zap.Error(err))
	}
	_ = logger.Sync()
}

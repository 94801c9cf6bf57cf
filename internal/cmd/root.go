package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/muesli/termenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/atikulmunna/logterm/internal/config"
	"github.com/atikulmunna/logterm/internal/logging"
	"github.com/atikulmunna/logterm/internal/output"
)

var (
	cfgFile string
	noColor bool
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "logterm",
	Short: "logterm: live log terminal for the electricity monitor",
	Long: `logterm shows the electricity monitor's backend logs in your terminal.
It loads recent history, then follows the live feed, reconnecting with
backoff when the backend goes away.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: $HOME/.logterm.yaml)")
	rootCmd.PersistentFlags().StringP("output", "o", "text", "output format: text, json")
	rootCmd.PersistentFlags().String("log-level", "info", "operational log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("api", "", "backend API base, e.g. http://localhost:8000")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	cobra.CheckErr(viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output")))
	cobra.CheckErr(viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level")))
	cobra.CheckErr(viper.BindPFlag("api_base", rootCmd.PersistentFlags().Lookup("api")))
}

func initConfig() {
	cobra.CheckErr(config.LoadDotenv())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigName(".logterm")
		viper.SetConfigType("yaml")
	}

	config.SetDefaults(viper.GetViper())
	config.BindEnv(viper.GetViper())

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			cobra.CheckErr(fmt.Errorf("read config: %w", err))
		}
	}
}

// setup loads the validated config and the operational logger.
func setup() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	logger, err := logging.New(os.Stderr, cfg.LogLevel)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if f := viper.ConfigFileUsed(); f != "" {
		logger.Debug().Str("file", f).Msg("using config file")
	}
	return cfg, logger, nil
}

// newRenderer builds the terminal render surface for the chosen format.
func newRenderer(format string, w io.Writer) output.Renderer {
	switch format {
	case "json":
		return output.NewJSONRenderer(w)
	default:
		r := output.NewTextRenderer(w)
		if noColor {
			r.SetColorProfile(termenv.Ascii)
		}
		return r
	}
}

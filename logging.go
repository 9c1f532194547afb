package main

import (
	"encoding/json"
	"fmt"
	gio "io"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// LogOptions configures the global logger.
type LogOptions struct {
	Level  string
	Format string
}

// AddFlags registers the logging flags on cmd and its subcommands.
func (o *LogOptions) AddFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVarP(&o.Level, "log-level", "", "info", "Logging level: info error or debug")
	flags.StringVarP(&o.Format, "log-format", "", "pretty", "Logging format: pretty or json")
}

// Setup sets the global level and points the global logger at out.
func (o *LogOptions) Setup(out gio.Writer) error {
	switch o.Level {
	case "info", "error", "debug":
		level, err := zerolog.ParseLevel(o.Level)
		if err != nil {
			return err
		}
		zerolog.SetGlobalLevel(level)
	default:
		return fmt.Errorf("invalid logging level %q", o.Level)
	}

	switch o.Format {
	case "pretty":
		log.Logger = log.Output(prettyWriter(out))
	case "json":
		log.Logger = zerolog.New(out).With().Timestamp().Logger()
	default:
		return fmt.Errorf("invalid log format %q", o.Format)
	}
	return nil
}

// prettyWriter prints numeric fields with three decimals.
func prettyWriter(out gio.Writer) zerolog.ConsoleWriter {
	writer := zerolog.ConsoleWriter{Out: out}
	writer.FormatFieldValue = func(i interface{}) string {
		if v, ok := i.(json.Number); ok {
			val, _ := v.Float64()
			return fmt.Sprintf("%.3f", val)
		}
		return fmt.Sprintf("%s", i)
	}
	return writer
}

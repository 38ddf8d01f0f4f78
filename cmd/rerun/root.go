// Package main implements the optional CLI launcher from spec.md §6: a
// thin wrapper that reads LogMsgs from stdin (the format FileSink
// writes) and forwards them to whichever sink the chosen subcommand
// selects, exiting with the codes spec.md §6 defines. Grounded on the
// teacher's cli/root.go (cobra command tree + viper-backed flags) and
// main.go (Execute, then map the returned error to an exit code).
package main

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rerun-go/rerun/catalog"
	"github.com/rerun-go/rerun/grpcproxy"
	"github.com/rerun-go/rerun/rerunerr"
	"github.com/rerun-go/rerun/sink"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd is the bare launcher: no subcommand on its own, just the
// persistent flags every subcommand shares.
var rootCmd = &cobra.Command{
	Use:   "rerun",
	Short: "forward a stream of logged recordings to a sink",
	Long: `rerun reads newline-delimited LogMsg JSON from stdin (the same
envelope FileSink writes) and forwards every message to one sink:
a file, a remote proxy server, or a locally hosted one a viewer can
attach to.`,
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.rerun.yaml)")

	serveGrpcCmd.Flags().String("catalog-dsn", "", "Postgres DSN for the recording catalog (optional)")
	_ = viper.BindPFlag("catalog_dsn", serveGrpcCmd.Flags().Lookup("catalog-dsn"))

	rootCmd.AddCommand(saveCmd, serveGrpcCmd, connectGrpcCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".rerun")
	}
	viper.SetEnvPrefix("RERUN")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig() // a missing/invalid config file falls back to flags/env/defaults
}

var saveCmd = &cobra.Command{
	Use:   "save <path>",
	Short: "write stdin's LogMsgs to an rrd file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := sink.NewFileSink(args[0])
		if err != nil {
			return err
		}
		defer s.Close()
		return forwardMsgs(os.Stdin, s)
	},
}

var serveGrpcCmd = &cobra.Command{
	Use:   "serve-grpc <addr>",
	Short: "host a local proxy server and forward stdin's LogMsgs to it, for a viewer to connect to",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var cat grpcproxy.Catalog
		if dsn := viper.GetString("catalog_dsn"); dsn != "" {
			c, err := catalog.Open(catalog.DefaultConfig(dsn))
			if err != nil {
				return rerunerr.Wrap(rerunerr.KindSpawnViewer, "open catalog", err)
			}
			defer c.Close()
			cat = c
		}
		s, err := sink.NewGrpcServerSink(args[0], cat)
		if err != nil {
			return rerunerr.Wrap(rerunerr.KindSpawnViewer, "serve grpc on "+args[0], err)
		}
		defer s.Close()
		return forwardUntilInterrupted(s)
	},
}

var connectGrpcCmd = &cobra.Command{
	Use:   "connect-grpc <addr>",
	Short: "stream stdin's LogMsgs to a remote proxy server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := sink.NewGrpcSink(args[0], nil)
		if err != nil {
			return err
		}
		defer s.Close()
		return forwardMsgs(os.Stdin, s)
	},
}

// forwardMsgs decodes newline-delimited JSON LogMsgs from r and sends
// each to s, flushing once r is exhausted.
func forwardMsgs(r io.Reader, s sink.Sink) error {
	dec := json.NewDecoder(r)
	for {
		msg, err := sink.DecodeLogMsg(dec)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return rerunerr.Wrap(rerunerr.KindSerialization, "decode LogMsg from stdin", err)
		}
		s.Send(msg)
	}
	return s.FlushBlocking(0)
}

// forwardUntilInterrupted is forwardMsgs's counterpart for a served
// recording: it keeps forwarding until stdin closes, then stays up
// (a GrpcServerSink's whole point is serving viewers after the logger
// is done) until SIGINT/SIGTERM.
func forwardUntilInterrupted(s sink.Sink) error {
	if err := forwardMsgs(os.Stdin, s); err != nil {
		return err
	}
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	return nil
}

// exitCode maps an error returned by rootCmd.Execute to spec.md §6's
// CLI exit codes: 0 success, 1 unknown error, 2 user-facing argument
// error, 3 viewer process spawn failure.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var e *rerunerr.Error
	if errors.As(err, &e) && e.Kind() == rerunerr.KindSpawnViewer {
		return 3
	}
	if errors.Is(err, cobra.ErrSubCommandRequired) {
		return 2
	}
	return 1
}

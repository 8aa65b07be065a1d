package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is the server's own release marker, separate from the wire
// protocol version negotiated during a control-channel hello.
const version = "0.1.0"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "lanrelay-server",
	Short: "lanrelay session server",
	Long:  "lanrelay-server hosts one LAN conferencing session: control, video, audio, screen-share, whiteboard, and file transfer.",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a session and block until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("lanrelay-server v%s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default none; flags and LANRELAY_* env vars suffice)")

	serveCmd.Flags().String("control-addr", ":9000", "control channel listen address")
	serveCmd.Flags().String("video-addr", ":10000", "video relay UDP listen address")
	serveCmd.Flags().String("audio-addr", ":11000", "audio relay UDP listen address")
	serveCmd.Flags().String("screen-addr", ":9001", "screen-share channel listen address")
	serveCmd.Flags().String("file-addr", ":9002", "file broker listen address")
	serveCmd.Flags().String("status-addr", "", "ambient HTTP status endpoint address (empty disables it)")
	serveCmd.Flags().String("data-dir", "./server_files", "directory uploaded files are stored in")
	viper.BindPFlags(serveCmd.Flags())

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	viper.SetEnvPrefix("LANRELAY")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "lanrelay-server: config file: %v\n", err)
		}
	}
}

func runServe() error {
	initConfig()

	cfg := SupervisorConfig{
		ControlAddr: viper.GetString("control-addr"),
		VideoAddr:   viper.GetString("video-addr"),
		AudioAddr:   viper.GetString("audio-addr"),
		ScreenAddr:  viper.GetString("screen-addr"),
		FileAddr:    viper.GetString("file-addr"),
		StatusAddr:  viper.GetString("status-addr"),
		DataDir:     viper.GetString("data-dir"),
	}

	sup, err := NewSupervisor(cfg)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		slog.Info("shutting down")
	}()

	return sup.Run(ctx)
}

// Execute runs the root command; it is the only entry point main calls.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

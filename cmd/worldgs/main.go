package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/worldgs/gameserver/pkg/cluster"
	"github.com/worldgs/gameserver/pkg/config"
	"github.com/worldgs/gameserver/pkg/log"
	"github.com/worldgs/gameserver/pkg/workerproc"
	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "worldgs",
	Short:   "worldgs runs a distributed, multi-region 2D online-world game server cluster",
	Version: Version,
}

var basePath, localPath string

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("worldgs version %s\ncommit: %s\n", Version, Commit))
	rootCmd.PersistentFlags().StringVar(&basePath, "config", "worldgs.yaml", "base configuration file")
	rootCmd.PersistentFlags().StringVar(&localPath, "local-config", "worldgs.local.yaml", "local override configuration file")
	config.BindFlags(rootCmd)

	rootCmd.AddCommand(masterCmd)
	rootCmd.AddCommand(workerCmd)
}

var masterCmd = &cobra.Command{
	Use:   "master",
	Short: "Run the cluster master, forking and supervising worker processes",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(basePath, localPath, cmd)
		if err != nil {
			return err
		}
		initLogging(cfg)

		self, _ := os.Executable()
		m := cluster.NewMaster(cluster.DefaultShutdownTiers())
		hb := newHeartbeatDialer(m)
		m.OnStarted = hb.onStarted

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		for peerID, addr := range cfg.Peers {
			local, err := config.IsLocalHost(addr.Host)
			if err != nil {
				return err
			}
			if !local {
				continue
			}
			spec := cluster.WorkerSpec{
				PeerID: peerID,
				Host:   addr.Host,
				Port:   addr.Port,
				Binary: self,
				Args: func(peerID string, port int) []string {
					return []string{"worker", "--peer-id", peerID, "--port", fmt.Sprintf("%d", port),
						"--config", basePath, "--local-config", localPath}
				},
			}
			if err := m.Spawn(ctx, spec); err != nil {
				return err
			}
		}

		go m.MonitorHeartbeats(ctx, cluster.DefaultHeartbeatConfig(), hb.sendPing)

		log.Logger.Info().Msg("cluster master running, press Ctrl+C to stop")
		waitForSignal()

		log.Logger.Info().Msg("shutting down worker processes")
		err = m.Shutdown(nil)
		hb.closeAll()
		return err
	},
}

var peerID string
var workerPort int

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run one worker process, hosting a shard of the entity cluster",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(basePath, localPath, cmd)
		if err != nil {
			return err
		}
		initLogging(cfg)

		peers := make(map[string]string, len(cfg.Peers))
		for id, addr := range cfg.Peers {
			if id == peerID {
				continue
			}
			peers[id] = fmt.Sprintf("%s:%d", addr.Host, addr.Port)
		}

		rt := workerproc.New(workerproc.Config{
			PeerID:      peerID,
			Peers:       peers,
			DataDir:     cfg.DataDir,
			ListenAddr:  fmt.Sprintf(":%d", workerPort),
			MetricsAddr: cfg.MetricsAddr,
		})

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if err := rt.Start(ctx); err != nil {
			return err
		}

		log.WithPeerID(peerID).Info().Msg("worker running, press Ctrl+C to stop")
		waitForSignal()

		return rt.Stop(context.Background())
	},
}

func init() {
	workerCmd.Flags().StringVar(&peerID, "peer-id", "", "this worker's peer id")
	workerCmd.Flags().IntVar(&workerPort, "port", 0, "this worker's bind port")
	workerCmd.MarkFlagRequired("peer-id")
}

func initLogging(cfg *config.Config) {
	level := log.InfoLevel
	switch cfg.LogLevel {
	case "debug":
		level = log.DebugLevel
	case "warn":
		level = log.WarnLevel
	case "error":
		level = log.ErrorLevel
	}
	log.Init(log.Config{Level: level, JSONOutput: cfg.LogJSON})
}

func waitForSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
}

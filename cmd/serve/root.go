package serve

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	cmdUtil "github.com/ValentinKolb/paperKV/cmd/util"
	"github.com/ValentinKolb/paperKV/lib/common"
	"github.com/ValentinKolb/paperKV/lib/db/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the paperKV HTTP server",
		Long:    `Start the paperKV HTTP server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is PAPER_<flag> (e.g. PAPER_TIMEOUT=15)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitConfig)

	// add flags
	cmdUtil.SetupBookFlags(ServeCmd)

	key := "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the API will listen (e.g. localhost:8080)"))

	key = "shards"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(Cluster Mode) Comma-separated list of replicated books. Format: NAME=SHARD_ID (e.g. users=100,orders=200). Without shards every book is opened locally on first use"))

	key = "rtt-millisecond"
	ServeCmd.PersistentFlags().Int(key, 100, cmdUtil.WrapString("(Cluster Mode) RTTMillisecond defines the average Round Trip Time (RTT) in milliseconds between two NodeHost instances. \nOther raft configuration parameters (ElectionRTT=value/10, HeartbeatRTT=value/100) are derived from this value"))

	key = "snapshot-entries"
	ServeCmd.PersistentFlags().Int(key, 10, cmdUtil.WrapString("(Cluster Mode) SnapshotEntries defines how often the state machine should be snapshotted automatically. It is defined in terms of the number of applied Raft log entries. SnapshotEntries can be set to 0 to disable such automatic snapshotting (not recommended)"))

	key = "compaction-overhead"
	ServeCmd.PersistentFlags().Int(key, 5, cmdUtil.WrapString("(Cluster Mode) CompactionOverhead defines the number of snapshots that should be retained in the system. Recommended value is about 1/2 of SnapshotEntries"))

	key = "replica-id"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(Cluster Mode) ReplicaID is the unique identifier for this NodeHost instance (e.g. 'node-1')"))

	key = "cluster-members"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(Cluster Mode) ClusterMembers is a comma-separated list of NodeHost addresses in the format 'node-1=localhost:63001,node-2=localhost:63002,...'"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("(Cluster Mode) Timeout in seconds"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	bookConf, err := cmdUtil.GetBookConfig("")
	if err != nil {
		return err
	}
	serveCmdConfig.Book = *bookConf

	// read the configuration from the command line flags and environment variables
	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.RTTMillisecond = viper.GetUint64("rtt-millisecond")
	serveCmdConfig.SnapshotEntries = viper.GetUint64("snapshot-entries")
	serveCmdConfig.CompactionOverhead = viper.GetUint64("compaction-overhead")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")

	// parse shards
	serveCmdConfig.Shards, err = parseShards(viper.GetString("shards"))
	if err != nil {
		return err
	}

	// parse replica id
	if id := viper.GetString("replica-id"); id != "" {
		serveCmdConfig.ReplicaID = uint64(util.HashString(id, 0))
	} else if serveCmdConfig.IsCluster() {
		// error only if cluster mode
		return fmt.Errorf("ReplicaId is required in cluster mode")
	}

	// parse cluster members
	if clusterMembers := viper.GetString("cluster-members"); clusterMembers != "" {
		serveCmdConfig.ClusterMembers = make(map[uint64]string)
		for _, member := range strings.Split(clusterMembers, ",") {
			parts := strings.Split(member, "=")
			if len(parts) != 2 {
				return fmt.Errorf("invalid cluster member format: %s (expected ID=address)", member)
			}
			idHash := util.HashString(strings.TrimSpace(parts[0]), 0)
			serveCmdConfig.ClusterMembers[uint64(idHash)] = strings.TrimSpace(parts[1])
		}
	} else if serveCmdConfig.IsCluster() {
		// error only if cluster mode
		return fmt.Errorf("ClusterMembers is required in cluster mode")
	}

	// test if the replica id is in the cluster members (only for cluster mode)
	if _, ok := serveCmdConfig.ClusterMembers[serveCmdConfig.ReplicaID]; !ok && serveCmdConfig.IsCluster() {
		return fmt.Errorf("no address found for replica ID %d in cluster members", serveCmdConfig.ReplicaID)
	}

	return nil
}

// parseShards parses NAME=SHARD_ID pairs. An empty string means local mode.
func parseShards(s string) (map[string]uint64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}

	shards := make(map[string]uint64)
	used := make(map[uint64]string)
	for _, shardConfig := range strings.Split(s, ",") {
		parts := strings.Split(shardConfig, "=")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid shard format: %s (expected NAME=SHARD_ID)", shardConfig)
		}

		name := strings.TrimSpace(parts[0])
		if err := cmdUtil.ValidateBookName(name); err != nil {
			return nil, err
		}
		shardID, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid shard ID %s: %v", parts[1], err)
		}
		if shardID == 0 {
			return nil, fmt.Errorf("invalid shard ID 0 for book %s", name)
		}
		if other, ok := used[shardID]; ok {
			return nil, fmt.Errorf("shard ID %d is used by book %s and %s", shardID, other, name)
		}
		if _, ok := shards[name]; ok {
			return nil, fmt.Errorf("book %s is listed twice", name)
		}

		shards[name] = shardID
		used[shardID] = name
	}
	return shards, nil
}

// run starts the paperKV server and blocks until it receives SIGINT or SIGTERM
func run(_ *cobra.Command, _ []string) error {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	// Init logger
	if err := common.InitLoggers(serveCmdConfig.Book.LogLevel); err != nil {
		return err
	}
	log.Infof("Created paperKV server")
	log.Infof("configuration:\n%s", serveCmdConfig.String())

	s, err := newServer(*serveCmdConfig)
	if err != nil {
		return err
	}
	defer s.Close()

	httpServer := &http.Server{
		Addr:    serveCmdConfig.Endpoint,
		Handler: s.handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting HTTP server on %s", serveCmdConfig.Endpoint)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Infof("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}

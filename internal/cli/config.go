package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"chainsnap/internal/app"
	"chainsnap/internal/types"
)

type configFlag struct {
	name  string
	key   string
	usage string
	def   any
}

// configFlags are shared by every command and map onto types.Config.
var configFlags = []configFlag{
	{"network", "network", "Network identifier", app.DefaultNetwork},
	{"name-prefix", "name_prefix", "Snapshot filename prefix", app.DefaultNamePrefix},
	{"staging-dir", "staging_dir", "Local directory for staged generations", ""},
	{"lock-file", "lock_file", "Run lock file (default <staging-dir>/.chainsnap.lock)", ""},
	{"metrics-file", "metrics_file", "Prometheus textfile written after each run", ""},
	{"rpc-url", "node.rpc_url", "Node JSON-RPC endpoint", app.DefaultRPCURL},
	{"rpc-timeout", "node.rpc_timeout", "Node JSON-RPC timeout", app.DefaultRPCTimeout},
	{"service", "node.service", "Node service unit", app.DefaultService},
	{"systemctl", "node.systemctl", "Service manager command", app.DefaultSystemctl},
	{"data-dir", "node.data_dir", "Node database directory to archive", ""},
	{"quiesce-delay", "node.quiesce_delay", "Wait after stopping the node", app.DefaultQuiesceDelay},
	{"restart-attempts", "node.restart_attempts", "Node restart attempts", app.DefaultRestartAttempts},
	{"archive-mode", "archive.mode", "Archive mode: file or stream", string(types.ArchiveModeFile)},
	{"archive-level", "archive.level", "zstd compression level (1-22)", app.DefaultArchiveLevel},
	{"archive-root", "archive.root_name", "Top-level directory name inside the archive", ""},
	{"sign-backend", "sign.backend", "Signing backend: gpg or ed25519", string(types.SignBackendGPG)},
	{"sign-key", "sign.key_id", "gpg key id or ed25519 key file", ""},
	{"gpg-binary", "sign.gpg_binary", "gpg binary", app.DefaultGPGBinary},
	{"gpg-home", "sign.gpg_home", "gpg home directory", ""},
	{"store", "store.backend", "Artifact store: file, gcs or none", string(types.StoreBackendFile)},
	{"store-dir", "store.dir", "File store directory", ""},
	{"base-url", "store.base_url", "Public URL prefix for published artifacts", ""},
	{"bucket", "store.bucket", "GCS bucket", ""},
	{"prefix", "store.prefix", "GCS object prefix", ""},
	{"gcs-endpoint", "store.endpoint", "GCS endpoint override", ""},
	{"gcs-credentials", "store.credentials_file", "GCS credentials file", ""},
	{"keep-remote", "retention.keep_remote", "Generations kept in the store", app.DefaultKeepRemote},
	{"keep-local", "retention.keep_local", "Generations kept in the staging dir", app.DefaultKeepLocal},
}

func bindConfigFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	for _, flag := range configFlags {
		switch def := flag.def.(type) {
		case string:
			flags.String(flag.name, def, flag.usage)
		case int:
			flags.Int(flag.name, def, flag.usage)
		case time.Duration:
			flags.Duration(flag.name, def, flag.usage)
		}
		_ = viper.BindPFlag(flag.key, flags.Lookup(flag.name))
	}
}

// buildConfig assembles the immutable run configuration from flags, env
// and config file.
func buildConfig() types.Config {
	return types.Config{
		Network:     viper.GetString("network"),
		NamePrefix:  viper.GetString("name_prefix"),
		StagingDir:  viper.GetString("staging_dir"),
		LockFile:    viper.GetString("lock_file"),
		MetricsFile: viper.GetString("metrics_file"),
		Node: types.NodeConfig{
			RPCURL:          viper.GetString("node.rpc_url"),
			RPCTimeout:      viper.GetDuration("node.rpc_timeout"),
			Service:         viper.GetString("node.service"),
			Systemctl:       viper.GetString("node.systemctl"),
			DataDir:         viper.GetString("node.data_dir"),
			QuiesceDelay:    viper.GetDuration("node.quiesce_delay"),
			RestartAttempts: viper.GetInt("node.restart_attempts"),
		},
		Archive: types.ArchiveConfig{
			Mode:     types.ArchiveMode(viper.GetString("archive.mode")),
			Level:    viper.GetInt("archive.level"),
			RootName: viper.GetString("archive.root_name"),
		},
		Sign: types.SignConfig{
			Backend:   types.SignBackend(viper.GetString("sign.backend")),
			KeyID:     viper.GetString("sign.key_id"),
			GPGBinary: viper.GetString("sign.gpg_binary"),
			GPGHome:   viper.GetString("sign.gpg_home"),
		},
		Store: types.StoreConfig{
			Backend:         types.StoreBackend(viper.GetString("store.backend")),
			Dir:             viper.GetString("store.dir"),
			BaseURL:         viper.GetString("store.base_url"),
			Bucket:          viper.GetString("store.bucket"),
			Prefix:          viper.GetString("store.prefix"),
			Endpoint:        viper.GetString("store.endpoint"),
			CredentialsFile: viper.GetString("store.credentials_file"),
		},
		Retention: types.RetentionConfig{
			KeepRemote: viper.GetInt("retention.keep_remote"),
			KeepLocal:  viper.GetInt("retention.keep_local"),
		},
	}
}

func newAppService(ctx context.Context) (app.Service, error) {
	return app.NewService(ctx, buildConfig(), version)
}

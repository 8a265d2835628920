package types

import "time"

// Config is assembled once at startup and handed to every use case.
// Components never consult the environment themselves.
type Config struct {
	Network     string          `yaml:"network"`
	NamePrefix  string          `yaml:"name_prefix"`
	StagingDir  string          `yaml:"staging_dir"`
	LockFile    string          `yaml:"lock_file"`
	MetricsFile string          `yaml:"metrics_file"`
	Node        NodeConfig      `yaml:"node"`
	Archive     ArchiveConfig   `yaml:"archive"`
	Sign        SignConfig      `yaml:"sign"`
	Store       StoreConfig     `yaml:"store"`
	Retention   RetentionConfig `yaml:"retention"`
}

type NodeConfig struct {
	RPCURL          string        `yaml:"rpc_url"`
	RPCTimeout      time.Duration `yaml:"rpc_timeout"`
	Service         string        `yaml:"service"`
	Systemctl       string        `yaml:"systemctl"`
	DataDir         string        `yaml:"data_dir"`
	QuiesceDelay    time.Duration `yaml:"quiesce_delay"`
	RestartAttempts int           `yaml:"restart_attempts"`
}

type ArchiveConfig struct {
	Mode     ArchiveMode `yaml:"mode"`
	Level    int         `yaml:"level"`
	RootName string      `yaml:"root_name"`
}

type SignConfig struct {
	Backend   SignBackend `yaml:"backend"`
	KeyID     string      `yaml:"key_id"`
	GPGBinary string      `yaml:"gpg_binary"`
	GPGHome   string      `yaml:"gpg_home"`
}

type StoreConfig struct {
	Backend         StoreBackend `yaml:"backend"`
	Dir             string       `yaml:"dir"`
	BaseURL         string       `yaml:"base_url"`
	Bucket          string       `yaml:"bucket"`
	Prefix          string       `yaml:"prefix"`
	Endpoint        string       `yaml:"endpoint"`
	CredentialsFile string       `yaml:"credentials_file"`
}

type RetentionConfig struct {
	KeepRemote int `yaml:"keep_remote"`
	KeepLocal  int `yaml:"keep_local"`
}

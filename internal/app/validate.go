package app

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"chainsnap/internal/types"
)

const (
	DefaultNetwork         = "mainnet"
	DefaultNamePrefix      = "ckb"
	DefaultRPCURL          = "http://127.0.0.1:8114"
	DefaultRPCTimeout      = 10 * time.Second
	DefaultService         = "ckb"
	DefaultSystemctl       = "systemctl"
	DefaultQuiesceDelay    = 10 * time.Second
	DefaultRestartAttempts = 3
	DefaultArchiveLevel    = 1
	DefaultGPGBinary       = "gpg"
	DefaultKeepRemote      = 3
	DefaultKeepLocal       = 1
	lockFileName           = ".chainsnap.lock"
	maxZstdLevel           = 22
)

// NormalizeConfig fills defaults and rejects values no operation can use.
// Requirements specific to one operation are checked by that operation.
func NormalizeConfig(cfg types.Config) (types.Config, error) {
	out := cfg
	out.Network = defaultString(out.Network, DefaultNetwork)
	out.NamePrefix = strings.TrimSpace(out.NamePrefix)
	out.StagingDir = strings.TrimSpace(out.StagingDir)
	out.Node.RPCURL = defaultString(out.Node.RPCURL, DefaultRPCURL)
	out.Node.Service = defaultString(out.Node.Service, DefaultService)
	out.Node.Systemctl = defaultString(out.Node.Systemctl, DefaultSystemctl)
	out.Node.DataDir = strings.TrimSpace(out.Node.DataDir)
	if out.Node.RPCTimeout <= 0 {
		out.Node.RPCTimeout = DefaultRPCTimeout
	}
	if out.Node.QuiesceDelay < 0 {
		return cfg, invalidConfig("node.quiesce_delay must not be negative")
	}
	if out.Node.RestartAttempts <= 0 {
		out.Node.RestartAttempts = DefaultRestartAttempts
	}

	out.Archive.Mode = types.ArchiveMode(strings.ToLower(defaultString(string(out.Archive.Mode), string(types.ArchiveModeFile))))
	if out.Archive.Mode != types.ArchiveModeFile && out.Archive.Mode != types.ArchiveModeStream {
		return cfg, invalidConfig(fmt.Sprintf("unsupported archive mode %q", out.Archive.Mode))
	}
	if out.Archive.Level == 0 {
		out.Archive.Level = DefaultArchiveLevel
	}
	if out.Archive.Level < 1 || out.Archive.Level > maxZstdLevel {
		return cfg, invalidConfig(fmt.Sprintf("archive.level must be between 1 and %d", maxZstdLevel))
	}
	if strings.TrimSpace(out.Archive.RootName) == "" && out.Node.DataDir != "" {
		out.Archive.RootName = filepath.Base(filepath.Clean(out.Node.DataDir))
	}
	if strings.ContainsAny(out.Archive.RootName, `/\`) {
		return cfg, invalidConfig("archive.root_name must be a single path element")
	}

	out.Sign.Backend = types.SignBackend(strings.ToLower(defaultString(string(out.Sign.Backend), string(types.SignBackendGPG))))
	if out.Sign.Backend != types.SignBackendGPG && out.Sign.Backend != types.SignBackendEd25519 {
		return cfg, invalidConfig(fmt.Sprintf("unsupported sign backend %q", out.Sign.Backend))
	}
	out.Sign.GPGBinary = defaultString(out.Sign.GPGBinary, DefaultGPGBinary)

	out.Store.Backend = types.StoreBackend(strings.ToLower(defaultString(string(out.Store.Backend), string(types.StoreBackendFile))))
	switch out.Store.Backend {
	case types.StoreBackendFile, types.StoreBackendGCS, types.StoreBackendNone:
	default:
		return cfg, invalidConfig(fmt.Sprintf("unsupported store backend %q", out.Store.Backend))
	}

	if out.Retention.KeepRemote < 0 || out.Retention.KeepLocal < 0 {
		return cfg, invalidConfig("retention counts must not be negative")
	}
	if out.Retention.KeepRemote == 0 {
		out.Retention.KeepRemote = DefaultKeepRemote
	}
	if out.Retention.KeepLocal == 0 {
		out.Retention.KeepLocal = DefaultKeepLocal
	}
	if strings.TrimSpace(out.LockFile) == "" && out.StagingDir != "" {
		out.LockFile = filepath.Join(out.StagingDir, lockFileName)
	}
	return out, nil
}

// ValidateForCreate checks everything a full snapshot run needs.
func ValidateForCreate(cfg types.Config) error {
	if cfg.Node.DataDir == "" {
		return invalidConfig("node.data_dir is required")
	}
	if cfg.StagingDir == "" {
		return invalidConfig("staging_dir is required")
	}
	if cfg.Sign.Backend == types.SignBackendEd25519 && strings.TrimSpace(cfg.Sign.KeyID) == "" {
		return invalidConfig("sign.key_id must name the ed25519 key file")
	}
	if cfg.Archive.Mode == types.ArchiveModeStream && cfg.Store.Backend == types.StoreBackendNone {
		return invalidConfig("stream archive mode requires a store backend")
	}
	return validateStore(cfg.Store)
}

func validateStore(cfg types.StoreConfig) error {
	switch cfg.Backend {
	case types.StoreBackendFile:
		if strings.TrimSpace(cfg.Dir) == "" {
			return invalidConfig("store.dir is required for file backend")
		}
	case types.StoreBackendGCS:
		if strings.TrimSpace(cfg.Bucket) == "" {
			return invalidConfig("store.bucket is required for gcs backend")
		}
	}
	return nil
}

func defaultString(value string, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	return trimmed
}

func invalidConfig(msg string) error {
	return errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(msg)
}

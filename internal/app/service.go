package app

import (
	"context"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"

	"chainsnap/internal/adapters"
	"chainsnap/internal/ports"
	"chainsnap/internal/types"
)

// Service runs the snapshot use cases against one immutable configuration.
// Remote is nil when no store backend is configured.
type Service struct {
	Config     types.Config
	Node       ports.NodeRPCPort
	Supervisor ports.ServicePort
	Handles    ports.HandleInspectorPort
	Archiver   ports.ArchivePort
	Digest     ports.DigestPort
	Signer     ports.SignerPort
	Signatures ports.SignatureVerifierPort
	Remote     ports.ArtifactStorePort
	Local      ports.ArtifactStorePort
	Fetcher    ports.ArtifactFetchPort
	Lock       ports.RunLockPort
	Metrics    ports.MetricsPort
	Clock      func() time.Time
	Sleep      func(ctx context.Context, d time.Duration) error
	NewBackOff func() backoff.BackOff
	CreatedBy  string
}

func NewService(ctx context.Context, cfg types.Config, version string) (Service, error) {
	normalized, err := NormalizeConfig(cfg)
	if err != nil {
		return Service{}, err
	}
	remote, err := buildRemoteStore(ctx, normalized.Store)
	if err != nil {
		return Service{}, err
	}
	service := Service{
		Config:     normalized,
		Node:       adapters.NewNodeRPCAdapter(normalized.Node.RPCURL, normalized.Node.RPCTimeout),
		Supervisor: adapters.NewSystemctlServiceAdapter(normalized.Node.Systemctl),
		Handles:    adapters.NewProcessHandleAdapter(),
		Archiver:   adapters.NewZstdArchiveAdapter(),
		Digest:     adapters.NewSHA256DigestAdapter(),
		Signer:     buildSigner(normalized.Sign),
		Signatures: adapters.NewDetectingSignatureVerifier(
			adapters.NewGPGSignerAdapter(normalized.Sign.GPGBinary, normalized.Sign.GPGHome),
			adapters.NewEd25519SignerAdapter(),
		),
		Remote:    remote,
		Fetcher:   adapters.NewHTTPFetchAdapter(0),
		Metrics:   adapters.NoopMetricsAdapter{},
		Clock:     time.Now,
		CreatedBy: "chainsnap " + version,
	}
	if normalized.StagingDir != "" {
		service.Local = adapters.NewFileStoreAdapter(normalized.StagingDir, "")
	}
	if normalized.LockFile != "" {
		lock, err := adapters.NewFlockRunLockAdapter(normalized.LockFile)
		if err != nil {
			return Service{}, err
		}
		service.Lock = lock
	}
	if normalized.MetricsFile != "" {
		service.Metrics = adapters.NewTextfileMetricsAdapter(normalized.MetricsFile)
	}
	return service, nil
}

// Close releases clients held by the configured store.
func (s Service) Close() error {
	if closer, ok := s.Remote.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func buildSigner(cfg types.SignConfig) ports.SignerPort {
	switch cfg.Backend {
	case types.SignBackendEd25519:
		return adapters.NewEd25519SignerAdapter()
	default:
		return adapters.NewGPGSignerAdapter(cfg.GPGBinary, cfg.GPGHome)
	}
}

func buildRemoteStore(ctx context.Context, cfg types.StoreConfig) (ports.ArtifactStorePort, error) {
	switch cfg.Backend {
	case types.StoreBackendFile:
		if cfg.Dir == "" {
			return nil, nil
		}
		return adapters.NewFileStoreAdapter(cfg.Dir, cfg.BaseURL), nil
	case types.StoreBackendGCS:
		if cfg.Bucket == "" {
			return nil, nil
		}
		return adapters.NewGCSStoreAdapter(ctx, adapters.GCSStoreOptions{
			Bucket:          cfg.Bucket,
			Prefix:          cfg.Prefix,
			BaseURL:         cfg.BaseURL,
			Endpoint:        cfg.Endpoint,
			CredentialsFile: cfg.CredentialsFile,
		})
	default:
		return nil, nil
	}
}

func timeNow(clock func() time.Time) time.Time {
	if clock == nil {
		return time.Now().UTC()
	}
	return clock().UTC()
}

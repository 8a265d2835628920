package core

import (
	"fmt"

	"chainsnap/internal/types"
)

type MetadataOptions struct {
	CreatedBy   string
	RootName    string
	SignBackend types.SignBackend
}

// BuildMetadata renders the per-generation document published next to the archive.
func BuildMetadata(snapshot types.Snapshot, opts MetadataOptions) types.Metadata {
	archiveName := ArtifactKey(snapshot.Stem, types.ArtifactKindArchive)
	checksumName := ArtifactKey(snapshot.Stem, types.ArtifactKindChecksum)
	signatureName := ArtifactKey(snapshot.Stem, types.ArtifactKindSignature)

	verifySig := fmt.Sprintf("gpg --verify %s %s", signatureName, checksumName)
	if opts.SignBackend == types.SignBackendEd25519 {
		verifySig = fmt.Sprintf("chainsnap verify %s --expect <trusted-identity>", archiveName)
	}
	rootName := opts.RootName
	if rootName == "" {
		rootName = "data"
	}
	return types.Metadata{
		Network:     snapshot.Network,
		BlockHeight: snapshot.Height,
		Date:        snapshot.Date.UTC().Format(DateLayout),
		Filename:    archiveName,
		SHA256:      snapshot.SHA256,
		CreatedBy:   opts.CreatedBy,
		NodeVersion: snapshot.NodeVersion,
		Compression: snapshot.Compression,
		URLs: types.MetadataURLs{
			Snapshot: snapshot.URLs.Archive,
			SHA256:   snapshot.URLs.Checksum,
			Sig:      snapshot.URLs.Signature,
		},
		Instructions: types.MetadataInstructions{
			Download: fmt.Sprintf("curl -fLO %s && curl -fLO %s && curl -fLO %s",
				snapshot.URLs.Archive, snapshot.URLs.Checksum, snapshot.URLs.Signature),
			Verify:    fmt.Sprintf("sha256sum -c %s", checksumName),
			VerifySig: verifySig,
			Extract:   fmt.Sprintf("tar --use-compress-program=unzstd -xf %s -C <node-home>", archiveName),
			Note: fmt.Sprintf("Stop the node before extracting. The archive unpacks into a single %s/ directory. Block height: %s.",
				rootName, describeHeight(snapshot.Height, snapshot.HeightKnown)),
		},
	}
}

// BuildPointer renders latest.json for a fully published generation.
func BuildPointer(snapshot types.Snapshot) types.Pointer {
	return types.Pointer{
		Latest:      ArtifactKey(snapshot.Stem, types.ArtifactKindArchive),
		BlockHeight: snapshot.Height,
		Date:        snapshot.Date.UTC().Format(DateLayout),
		SnapshotURL: snapshot.URLs.Archive,
		SHA256URL:   snapshot.URLs.Checksum,
		SigURL:      snapshot.URLs.Signature,
		MetaURL:     snapshot.URLs.Metadata,
	}
}

// PointerStem returns the stem referenced by a pointer.
func PointerStem(pointer types.Pointer) (string, bool) {
	stem, kind, ok := SplitArtifactKey(pointer.Latest)
	if !ok || kind != types.ArtifactKindArchive {
		return "", false
	}
	return stem, true
}

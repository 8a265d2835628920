package types

// Metadata is the per-generation F.json document.
type Metadata struct {
	Network      string               `json:"network"`
	BlockHeight  int64                `json:"block_height"`
	Date         string               `json:"date"`
	Filename     string               `json:"filename"`
	SHA256       string               `json:"sha256"`
	CreatedBy    string               `json:"created_by"`
	NodeVersion  string               `json:"node_version"`
	Compression  string               `json:"compression"`
	URLs         MetadataURLs         `json:"urls"`
	Instructions MetadataInstructions `json:"instructions"`
}

type MetadataURLs struct {
	Snapshot string `json:"snapshot"`
	SHA256   string `json:"sha256"`
	Sig      string `json:"sig"`
}

type MetadataInstructions struct {
	Download  string `json:"download"`
	Verify    string `json:"verify"`
	VerifySig string `json:"verify_sig"`
	Extract   string `json:"extract"`
	Note      string `json:"note"`
}

// Pointer is the latest.json record.
type Pointer struct {
	Latest      string `json:"latest"`
	BlockHeight int64  `json:"block_height"`
	Date        string `json:"date"`
	SnapshotURL string `json:"snapshot_url"`
	SHA256URL   string `json:"sha256_url"`
	SigURL      string `json:"sig_url"`
	MetaURL     string `json:"meta_url"`
}

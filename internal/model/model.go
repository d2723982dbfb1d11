// Package model holds the wire/on-disk record types of the artifact
// repository: objects (blobs, recipes, manifests, snaps) and the
// repo-scoped aggregate (publications, bundles, promotions, releases,
// lanes, gates, ACLs).
package model

import (
	"sort"

	"github.com/inflatable-cookie/convergence-sub001/internal/objectid"
)

// FileRecipe describes a chunked file as an ordered list of blob chunks.
type FileRecipe struct {
	Version   int         `json:"version"`
	TotalSize int64       `json:"total_size"`
	Chunks    []ChunkSpec `json:"chunks"`
}

// ChunkSpec references one chunk of a file recipe.
type ChunkSpec struct {
	BlobID objectid.ID `json:"blob_id"`
	Size   int64       `json:"size"`
}

// Manifest is a directory manifest: a sorted, name-unique list of entries.
type Manifest struct {
	Version int             `json:"version"`
	Entries []ManifestEntry `json:"entries"`
}

// SortEntries sorts m's entries by name in place, satisfying the
// deterministic-ordering invariant in §3.
func (m *Manifest) SortEntries() {
	sort.Slice(m.Entries, func(i, j int) bool { return m.Entries[i].Name < m.Entries[j].Name })
}

// ManifestEntry is one named child of a directory manifest.
type ManifestEntry struct {
	Name string    `json:"name"`
	Kind EntryKind `json:"kind"`
}

// Entry kind discriminators.
const (
	KindFile          = "file"
	KindFileChunks    = "file_chunks"
	KindDir           = "dir"
	KindSymlink       = "symlink"
	KindSuperposition = "superposition"
	KindTombstone     = "tombstone" // variant-only, never a top-level entry kind
)

// EntryKind is a closed tagged union over the five manifest entry kinds
// described in §3. Exactly one of the pointer fields matching Type is
// set; callers must switch exhaustively on Type, including the
// Superposition case, before touching any pointer field.
type EntryKind struct {
	Type string `json:"type"`

	File          *FileRef          `json:"file,omitempty"`
	FileChunks    *FileChunksRef    `json:"file_chunks,omitempty"`
	Dir           *DirRef           `json:"dir,omitempty"`
	Symlink       *SymlinkRef       `json:"symlink,omitempty"`
	Superposition *SuperpositionRef `json:"superposition,omitempty"`
}

// FileRef is an inline (non-chunked) file entry.
type FileRef struct {
	Blob objectid.ID `json:"blob"`
	Mode uint32      `json:"mode"`
	Size int64       `json:"size"`
}

// FileChunksRef is a chunked file entry; Size must equal the recipe's
// TotalSize.
type FileChunksRef struct {
	Recipe objectid.ID `json:"recipe"`
	Mode   uint32      `json:"mode"`
	Size   int64       `json:"size"`
}

// DirRef is a subdirectory entry, referencing another manifest by ID.
type DirRef struct {
	Manifest objectid.ID `json:"manifest"`
}

// SymlinkRef is a symbolic link entry.
type SymlinkRef struct {
	Target string `json:"target"`
}

// SuperpositionRef is an unresolved conflict: the competing per-source
// views of one name, ordered by SourcePublicationID.
type SuperpositionRef struct {
	Variants []SuperpositionVariant `json:"variants"`
}

// SuperpositionVariant is one input's view of a conflicted entry.
type SuperpositionVariant struct {
	SourcePublicationID string      `json:"source_publication_id"`
	Variant             VariantKind `json:"variant_kind"`
}

// VariantKind mirrors EntryKind's non-superposition cases plus Tombstone
// (the entry is absent from that source).
type VariantKind struct {
	Type string `json:"type"`

	File       *FileRef       `json:"file,omitempty"`
	FileChunks *FileChunksRef `json:"file_chunks,omitempty"`
	Dir        *DirRef        `json:"dir,omitempty"`
	Symlink    *SymlinkRef    `json:"symlink,omitempty"`
}

// SortVariants sorts variants by SourcePublicationID, satisfying §3's
// deterministic-ordering invariant.
func SortVariants(variants []SuperpositionVariant) {
	sort.Slice(variants, func(i, j int) bool {
		return variants[i].SourcePublicationID < variants[j].SourcePublicationID
	})
}

// HasSuperposition reports whether kind is (or contains, at the top
// level) a superposition entry.
func (k EntryKind) HasSuperposition() bool { return k.Type == KindSuperposition }

// SnapStats carries summary counters computed at snap creation time.
type SnapStats struct {
	FileCount  int64 `json:"file_count"`
	TotalBytes int64 `json:"total_bytes"`
}

// SnapRecord is an immutable directory snapshot pinned at a root manifest.
type SnapRecord struct {
	Version      int         `json:"version"`
	ID           objectid.ID `json:"id"`
	CreatedAt    string      `json:"created_at"` // RFC3339Nano
	RootManifest objectid.ID `json:"root_manifest"`
	Message      string      `json:"message,omitempty"`
	Stats        SnapStats   `json:"stats"`
}

// Resolution records that a publication is the result of resolving
// superpositions present in some ancestor bundle.
type Resolution struct {
	AncestorBundleID string `json:"ancestor_bundle_id"`
}

// Publication binds an already-uploaded snap to a (scope, gate) coordinate.
type Publication struct {
	ID              string      `json:"id"`
	SnapID          objectid.ID `json:"snap_id"`
	Scope           string      `json:"scope"`
	Gate            string      `json:"gate"`
	Publisher       string      `json:"publisher"`
	PublisherUserID string      `json:"publisher_user_id,omitempty"`
	CreatedAt       string      `json:"created_at"`
	Resolution      *Resolution `json:"resolution,omitempty"`
}

// Bundle is a merge of one or more publications at a (scope, gate).
type Bundle struct {
	ID                string      `json:"id"`
	Scope             string      `json:"scope"`
	Gate              string      `json:"gate"`
	RootManifest      objectid.ID `json:"root_manifest"`
	InputPublications []string    `json:"input_publications"`
	CreatedBy         string      `json:"created_by"`
	CreatedByUserID   string      `json:"created_by_user_id,omitempty"`
	CreatedAt         string      `json:"created_at"`
	Promotable        bool        `json:"promotable"`
	Reasons           []string    `json:"reasons"`
	Approvals         []string    `json:"approvals"`
	ApprovalUserIDs   []string    `json:"approval_user_ids,omitempty"`
}

// Promotion is an immutable event edge in gate space.
type Promotion struct {
	ID               string `json:"id"`
	BundleID         string `json:"bundle_id"`
	Scope            string `json:"scope"`
	FromGate         string `json:"from_gate"`
	ToGate           string `json:"to_gate"`
	PromotedBy       string `json:"promoted_by"`
	PromotedByUserID string `json:"promoted_by_user_id,omitempty"`
	PromotedAt       string `json:"promoted_at"`
}

// Release is a named pointer into the bundle space.
type Release struct {
	ID               string `json:"id"`
	Channel          string `json:"channel"`
	BundleID         string `json:"bundle_id"`
	Scope            string `json:"scope"`
	Gate             string `json:"gate"`
	ReleasedBy       string `json:"released_by"`
	ReleasedByUserID string `json:"released_by_user_id,omitempty"`
	ReleasedAt       string `json:"released_at"`
	Notes            string `json:"notes,omitempty"`
}

// LaneHead is the most recent snap a handle has pushed into a lane.
type LaneHead struct {
	SnapID    objectid.ID `json:"snap_id"`
	UpdatedAt string      `json:"updated_at"`
	ClientID  string      `json:"client_id,omitempty"`
}

// LaneHeadHistoryKeepLast is the fixed retention depth for lane head
// history (§3 Lane, §8 scenario 6).
const LaneHeadHistoryKeepLast = 5

// Lane is an unpublished collaboration space; its heads are GC roots.
type Lane struct {
	ID            string                `json:"id"`
	Members       map[string]struct{}   `json:"members"`
	MemberUserIDs map[string]struct{}   `json:"member_user_ids,omitempty"`
	Heads         map[string]LaneHead   `json:"heads"`
	HeadHistory   map[string][]LaneHead `json:"head_history"`
}

// GateDef is one node of the per-repo gate DAG.
type GateDef struct {
	ID                            string   `json:"id"`
	Name                          string   `json:"name"`
	Upstream                      []string `json:"upstream"`
	AllowReleases                 bool     `json:"allow_releases"`
	AllowSuperpositions           bool     `json:"allow_superpositions"`
	AllowMetadataOnlyPublications bool     `json:"allow_metadata_only_publications"`
	RequiredApprovals             int      `json:"required_approvals"`
}

// GateGraph is the per-repo gate DAG.
type GateGraph struct {
	Version int       `json:"version"`
	Gates   []GateDef `json:"gates"`
}

// Repo is the per-repository aggregate persisted as repo.json.
type Repo struct {
	ID          string `json:"id"`
	Owner       string `json:"owner"`
	OwnerUserID string `json:"owner_user_id,omitempty"`

	Readers          map[string]struct{} `json:"readers"`
	ReaderUserIDs    map[string]struct{} `json:"reader_user_ids,omitempty"`
	Publishers       map[string]struct{} `json:"publishers"`
	PublisherUserIDs map[string]struct{} `json:"publisher_user_ids,omitempty"`

	Lanes map[string]*Lane `json:"lanes"`

	GateGraph GateGraph           `json:"gate_graph"`
	Scopes    map[string]struct{} `json:"scopes"`

	Snaps map[objectid.ID]struct{} `json:"snaps"`

	Publications []*Publication `json:"publications"`
	Bundles      []*Bundle      `json:"bundles"`

	PinnedBundles map[string]struct{} `json:"pinned_bundles"`

	Promotions     []*Promotion                 `json:"promotions"`
	PromotionState map[string]map[string]string `json:"promotion_state"` // scope -> gate -> bundle_id

	Releases []*Release `json:"releases"`
}

// User is an identity known to the server.
type User struct {
	ID          string `json:"id"`
	Handle      string `json:"handle"`
	DisplayName string `json:"display_name,omitempty"`
	Admin       bool   `json:"admin"`
	CreatedAt   string `json:"created_at"`
}

// AccessToken is a bearer credential; only TokenHash is ever persisted.
type AccessToken struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	TokenHash  string `json:"token_hash"`
	Label      string `json:"label,omitempty"`
	CreatedAt  string `json:"created_at"`
	LastUsedAt string `json:"last_used_at,omitempty"`
	RevokedAt  string `json:"revoked_at,omitempty"`
	ExpiresAt  string `json:"expires_at,omitempty"`
}

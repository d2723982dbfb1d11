package model

import (
	"sort"
	"strings"

	"github.com/inflatable-cookie/convergence-sub001/internal/objectid"
)

// ComputeSnapID derives a snap's ID from its (created_at, root_manifest)
// pair, per §3: equal pairs always produce identical snap IDs.
func ComputeSnapID(createdAt string, root objectid.ID) objectid.ID {
	h := objectid.Hasher()
	h.Write([]byte("snap\x00"))
	h.Write([]byte(createdAt))
	h.Write([]byte{0})
	h.Write([]byte(root.String()))
	return objectid.FromHash(h)
}

// ComputeBundleID derives a bundle's ID deterministically from its
// defining inputs, per §3 and §8: two bundles with identical inputs and
// metadata converge on the same ID. inputPublications need not be
// pre-sorted; ComputeBundleID sorts and dedupes its own copy.
func ComputeBundleID(repoID, scope, gate string, root objectid.ID, inputPublications []string, creator, createdAt string) string {
	pubs := append([]string(nil), inputPublications...)
	sort.Strings(pubs)
	pubs = dedupeSorted(pubs)

	h := objectid.Hasher()
	h.Write([]byte("bundle\x00"))
	for _, field := range []string{repoID, scope, gate, root.String(), strings.Join(pubs, ","), creator, createdAt} {
		h.Write([]byte(field))
		h.Write([]byte{0})
	}
	return objectid.FromHash(h).String()
}

func dedupeSorted(s []string) []string {
	if len(s) == 0 {
		return s
	}
	out := s[:1]
	for _, v := range s[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

// ComputePublicationID derives a publication's ID from the coordinate
// it binds: (snap, scope, gate, publisher, created_at). Publications
// are unique per (snap, scope, gate) per §3, but the ID itself also
// folds in publisher/created_at so two distinct publish attempts that
// raced and both got rejected by the uniqueness check never collide
// before that check runs.
func ComputePublicationID(snapID objectid.ID, scope, gate, publisher, createdAt string) string {
	h := objectid.Hasher()
	h.Write([]byte("publication\x00"))
	for _, field := range []string{snapID.String(), scope, gate, publisher, createdAt} {
		h.Write([]byte(field))
		h.Write([]byte{0})
	}
	return objectid.FromHash(h).String()
}

// ComputePromotionID derives a promotion event's ID from the edge it
// records plus its actor and timestamp, keeping the promotion log
// append-only and its entries individually content-derived like every
// other record in the system.
func ComputePromotionID(bundleID, scope, fromGate, toGate, promotedBy, promotedAt string) string {
	h := objectid.Hasher()
	h.Write([]byte("promotion\x00"))
	for _, field := range []string{bundleID, scope, fromGate, toGate, promotedBy, promotedAt} {
		h.Write([]byte(field))
		h.Write([]byte{0})
	}
	return objectid.FromHash(h).String()
}

// ComputeReleaseID derives a release's ID from its channel/bundle
// coordinate, actor, and timestamp.
func ComputeReleaseID(channel, bundleID, scope, gate, releasedBy, releasedAt string) string {
	h := objectid.Hasher()
	h.Write([]byte("release\x00"))
	for _, field := range []string{channel, bundleID, scope, gate, releasedBy, releasedAt} {
		h.Write([]byte(field))
		h.Write([]byte{0})
	}
	return objectid.FromHash(h).String()
}

// SortedDedupedStrings is a small shared helper used wherever the spec
// asks for a sorted, deduped set rendered as a slice (bundle approvals,
// input_publications, promotable reasons order excepted — reasons keep
// a fixed evaluation order, not lexical order).
func SortedDedupedStrings(in []string) []string {
	cp := append([]string(nil), in...)
	sort.Strings(cp)
	return dedupeSorted(cp)
}

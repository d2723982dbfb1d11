package ops_test

import (
	"testing"
	"time"

	"github.com/inflatable-cookie/convergence-sub001/internal/identity"
	"github.com/inflatable-cookie/convergence-sub001/internal/model"
	"github.com/inflatable-cookie/convergence-sub001/internal/ops"
)

func TestCreateReleaseRequiresGateToAllowReleases(t *testing.T) {
	rs := newTestRepo(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	alice := identity.Subject{Handle: "alice"}

	if err := rs.Update(func(repo *model.Repo) error {
		repo.GateGraph.Gates[0].AllowReleases = false
		return nil
	}); err != nil {
		t.Fatalf("disabling allow_releases: %v", err)
	}

	pub := publishSnap(t, rs, alice, "main", "dev-intake", "f.txt", []byte("content"), now)
	bundle, err := ops.CreateBundle(rs, alice, "main", "dev-intake", []string{pub}, now, nil)
	if err != nil {
		t.Fatalf("CreateBundle: %v", err)
	}

	if _, err := ops.CreateRelease(rs, alice, "stable", bundle.ID, "", now, nil); err == nil {
		t.Fatal("expected CreateRelease to fail when the gate disallows releases")
	}

	if err := rs.Update(func(repo *model.Repo) error {
		repo.GateGraph.Gates[0].AllowReleases = true
		return nil
	}); err != nil {
		t.Fatalf("enabling allow_releases: %v", err)
	}

	rel, err := ops.CreateRelease(rs, alice, "stable", bundle.ID, "first cut", now, nil)
	if err != nil {
		t.Fatalf("CreateRelease: %v", err)
	}
	if rel.Channel != "stable" || rel.BundleID != bundle.ID {
		t.Fatalf("unexpected release: %+v", rel)
	}
}

func TestChannelHeadPicksLatestReleasedAt(t *testing.T) {
	rs := newTestRepo(t)
	alice := identity.Subject{Handle: "alice"}
	earlier := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	later := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	pubOld := publishSnap(t, rs, alice, "main", "dev-intake", "old.txt", []byte("old"), earlier)
	bundleOld, err := ops.CreateBundle(rs, alice, "main", "dev-intake", []string{pubOld}, earlier, nil)
	if err != nil {
		t.Fatalf("CreateBundle old: %v", err)
	}
	if _, err := ops.CreateRelease(rs, alice, "stable", bundleOld.ID, "", earlier, nil); err != nil {
		t.Fatalf("CreateRelease old: %v", err)
	}

	pubNew := publishSnap(t, rs, alice, "main", "dev-intake", "new.txt", []byte("new"), later)
	bundleNew, err := ops.CreateBundle(rs, alice, "main", "dev-intake", []string{pubNew}, later, nil)
	if err != nil {
		t.Fatalf("CreateBundle new: %v", err)
	}
	newRel, err := ops.CreateRelease(rs, alice, "stable", bundleNew.ID, "", later, nil)
	if err != nil {
		t.Fatalf("CreateRelease new: %v", err)
	}

	var head *model.Release
	if err := rs.View(func(repo *model.Repo) error {
		var ok bool
		head, ok = ops.ChannelHead(repo, "stable")
		if !ok {
			t.Fatal("expected stable to have a head release")
		}
		return nil
	}); err != nil {
		t.Fatalf("View: %v", err)
	}
	if head.ID != newRel.ID {
		t.Fatalf("channel head = %s, want the later release %s", head.ID, newRel.ID)
	}
}

func TestPinBundleThenUnpin(t *testing.T) {
	rs := newTestRepo(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	alice := identity.Subject{Handle: "alice"}

	pub := publishSnap(t, rs, alice, "main", "dev-intake", "f.txt", []byte("content"), now)
	bundle, err := ops.CreateBundle(rs, alice, "main", "dev-intake", []string{pub}, now, nil)
	if err != nil {
		t.Fatalf("CreateBundle: %v", err)
	}

	if err := ops.PinBundle(rs, alice, bundle.ID); err != nil {
		t.Fatalf("PinBundle: %v", err)
	}
	if err := rs.View(func(repo *model.Repo) error {
		if _, ok := repo.PinnedBundles[bundle.ID]; !ok {
			t.Fatal("expected bundle to be in the pin set after PinBundle")
		}
		return nil
	}); err != nil {
		t.Fatalf("View: %v", err)
	}

	if err := ops.UnpinBundle(rs, alice, bundle.ID); err != nil {
		t.Fatalf("UnpinBundle: %v", err)
	}
	if err := rs.View(func(repo *model.Repo) error {
		if _, ok := repo.PinnedBundles[bundle.ID]; ok {
			t.Fatal("expected bundle to be absent from the pin set after UnpinBundle")
		}
		return nil
	}); err != nil {
		t.Fatalf("View: %v", err)
	}
}

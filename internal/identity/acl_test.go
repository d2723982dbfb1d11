package identity_test

import (
	"testing"

	"github.com/inflatable-cookie/convergence-sub001/internal/identity"
	"github.com/inflatable-cookie/convergence-sub001/internal/model"
)

func newRepo() *model.Repo {
	return &model.Repo{
		Owner:      "owner-handle",
		Readers:    map[string]struct{}{"reader-handle": {}},
		Publishers: map[string]struct{}{"publisher-handle": {}},
		Lanes: map[string]*model.Lane{
			"default": {Members: map[string]struct{}{"lane-member": {}}},
		},
	}
}

func TestCanReadGrantsOwnerReaderPublisherAndAdmin(t *testing.T) {
	repo := newRepo()

	cases := []struct {
		name string
		sub  identity.Subject
		want bool
	}{
		{"owner", identity.Subject{Handle: "owner-handle"}, true},
		{"reader", identity.Subject{Handle: "reader-handle"}, true},
		{"publisher implies read", identity.Subject{Handle: "publisher-handle"}, true},
		{"admin", identity.Subject{Handle: "stranger", Admin: true}, true},
		{"stranger", identity.Subject{Handle: "stranger"}, false},
	}
	for _, c := range cases {
		if got := identity.CanRead(repo, c.sub); got != c.want {
			t.Errorf("%s: CanRead = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestCanPublishExcludesPlainReaders(t *testing.T) {
	repo := newRepo()
	if identity.CanPublish(repo, identity.Subject{Handle: "reader-handle"}) {
		t.Fatal("a plain reader must not be able to publish")
	}
	if !identity.CanPublish(repo, identity.Subject{Handle: "publisher-handle"}) {
		t.Fatal("a publisher must be able to publish")
	}
}

func TestCanUseLaneMembershipOrPublisherAccess(t *testing.T) {
	repo := newRepo()
	lane := repo.Lanes["default"]

	if !identity.CanUseLane(repo, lane, identity.Subject{Handle: "lane-member"}) {
		t.Fatal("a lane member should be able to use the lane")
	}
	if !identity.CanUseLane(repo, lane, identity.Subject{Handle: "publisher-handle"}) {
		t.Fatal("a repo publisher should implicitly be able to use any lane")
	}
	if identity.CanUseLane(repo, lane, identity.Subject{Handle: "stranger"}) {
		t.Fatal("a stranger with no lane membership should be refused")
	}
	if identity.CanUseLane(repo, nil, identity.Subject{Handle: "lane-member"}) {
		t.Fatal("a nil lane should never grant access to a non-publisher")
	}
}

func TestACLChecksMatchOnUserIDToo(t *testing.T) {
	repo := newRepo()
	repo.ReaderUserIDs = map[string]struct{}{"reader-uid": {}}

	if !identity.CanRead(repo, identity.Subject{UserID: "reader-uid"}) {
		t.Fatal("CanRead should match on user_id even when the handle doesn't match")
	}
}

package securitymanager

import (
	"path/filepath"
	"testing"
)

func TestWriteLoad(t *testing.T) {
	mgr, err := NewPeerSecurityManager()
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	pub, priv := filepath.Join(dir, "pubkey.txt"), filepath.Join(dir, "privkey.txt")

	if err = mgr.WriteKeys(pub, priv); err != nil {
		t.Fatal(err)
	}

	other := new(keyWriteLoader)
	if err = other.LoadKeys(pub, priv); err != nil {
		t.Fatal(err)
	}
	if other.public != mgr.public || other.private != mgr.private {
		t.Error("loaded keys differ from written keys")
	}
}

func TestLoadOnlyOne(t *testing.T) {
	broker, err := NewBrokerSecurityManager()
	if err != nil {
		t.Fatal(err)
	}
	pub := filepath.Join(t.TempDir(), "broker.pub")
	if err = broker.WriteKeys(pub, DONOTWRITE); err != nil {
		t.Fatal(err)
	}

	peer, _ := NewPeerSecurityManager()
	if err = peer.LoadBrokerPubkey(pub); err != nil {
		t.Fatal(err)
	}
	if peer.brokerPublic != broker.GetPublicKey() {
		t.Error("wrong broker key loaded")
	}
}

func TestRejectShortKey(t *testing.T) {
	mgr, _ := NewBrokerSecurityManager()
	mgr.SetKeys("pub", "priv")

	if err := mgr.WriteKeys(filepath.Join(t.TempDir(), "x"), DONOTWRITE); err == nil {
		t.Error("wrote a malformed key")
	}
}

func TestKeyMgmt(t *testing.T) {
	mgr, _ := NewBrokerSecurityManager()

	mgr.AddPeerKeys("a", "b", "c")

	if mgr.allowed_peer_keys == nil || len(mgr.allowed_peer_keys) != 3 {
		t.Error("List of peer keys is incorrect")
		return
	}

	mgr.ResetPeerKeys()

	if mgr.allowed_peer_keys != nil {
		t.Error("ResetPeerKeys() does not work.")
	}
}

func TestExplicitKeys(t *testing.T) {
	mgr, _ := NewBrokerSecurityManager()

	mgr.SetKeys("pub", "priv")

	if mgr.GetPublicKey() != "pub" {
		t.Error("Wrong public key returned")
	}
	if mgr.public != "pub" || mgr.private != "priv" {
		t.Error("Wrong internal keys")
	}
}

func TestApplyIncomplete(t *testing.T) {
	peer, _ := NewPeerSecurityManager()

	var nilmgr *PeerSecurityManager
	if err := nilmgr.ApplyToPeerSocket(nil); err != nil {
		t.Error("nil manager should be a no-op")
	}
	if err := peer.ApplyToPeerSocket(nil); err == nil {
		t.Error("applied without broker key")
	}
}

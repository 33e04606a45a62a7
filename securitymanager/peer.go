package securitymanager

import (
	"errors"

	"github.com/pebbe/zmq4"
)

// PeerSecurityManager sets up CURVE encryption on the DEALER socket a peer uses to connect to
// the broker. The broker's public key must be known before connecting.
type PeerSecurityManager struct {
	*keyWriteLoader
	brokerPublic string
}

// Set up the manager with a freshly generated keypair.
func NewPeerSecurityManager() (*PeerSecurityManager, error) {
	mgr := &PeerSecurityManager{keyWriteLoader: new(keyWriteLoader)}

	var err error
	mgr.public, mgr.private, err = zmq4.NewCurveKeypair()
	if err != nil {
		return nil, err
	}
	return mgr, nil
}

// Apply the keys to sock. Must be called before Connect(). Does nothing on a nil manager.
func (mgr *PeerSecurityManager) ApplyToPeerSocket(sock *zmq4.Socket) error {
	if mgr == nil {
		return nil
	}
	if mgr.brokerPublic == "" || mgr.public == "" || mgr.private == "" {
		return errors.New("not all three keys (broker public, peer public, peer private) are set")
	}

	t, err := sock.GetType()
	if err != nil {
		return err
	}
	if t != zmq4.DEALER {
		return errors.New("wrong socket type (not DEALER)")
	}
	return sock.ClientAuthCurve(mgr.brokerPublic, mgr.public, mgr.private)
}

func (mgr *PeerSecurityManager) SetBrokerPubkey(key string) {
	mgr.brokerPublic = key
}

// Load the broker's public key from keyfile.
func (mgr *PeerSecurityManager) LoadBrokerPubkey(keyfile string) error {
	kwl := new(keyWriteLoader)
	if err := kwl.LoadKeys(keyfile, DONOTREAD); err != nil {
		return err
	}
	mgr.brokerPublic = kwl.public
	return nil
}

package securitymanager

import (
	"errors"

	"github.com/pebbe/zmq4"
)

const DONOTWRITE = "___donotwrite_key_to_file"
const DONOTREAD = "___donotread_key_from_file"
const BROKER_DOMAIN = "cmb.broker"
const Z85_KEY_LENGTH = 40

// The broker side of CURVE security, after the Iron House pattern of the ZeroMQ guide.
//
// A BrokerSecurityManager is applied to the broker's ROUTER socket. Peers are authenticated by
// their public key; without allowed keys, any peer holding the broker's public key may connect.
type BrokerSecurityManager struct {
	*keyWriteLoader
	// Z85 keys
	allowed_peer_keys []string
}

// Set up the manager with a freshly generated keypair.
func NewBrokerSecurityManager() (*BrokerSecurityManager, error) {
	mgr := &BrokerSecurityManager{keyWriteLoader: new(keyWriteLoader)}

	var err error
	mgr.public, mgr.private, err = zmq4.NewCurveKeypair()
	if err != nil {
		return nil, err
	}
	return mgr, nil
}

// Apply the keys to sock. Must be called before Bind(). Safe to call on a nil manager (no security).
func (mgr *BrokerSecurityManager) ApplyToBrokerSocket(sock *zmq4.Socket) error {
	if mgr == nil {
		return nil
	}
	if mgr.private == "" || mgr.public == "" {
		return errors.New("incomplete initialization: no key(s)")
	}

	t, err := sock.GetType()
	if err != nil {
		return err
	}
	if t != zmq4.ROUTER {
		return errors.New("wrong socket type (not ROUTER)")
	}

	// returns an error if already running; that's fine
	zmq4.AuthStart()

	if mgr.allowed_peer_keys != nil {
		zmq4.AuthCurveAdd(BROKER_DOMAIN, mgr.allowed_peer_keys...)
	} else {
		zmq4.AuthCurveAdd(BROKER_DOMAIN, zmq4.CURVE_ALLOW_ANY)
	}
	return sock.ServerAuthCurve(BROKER_DOMAIN, mgr.private)
}

// Tear down the authentication handler. Does nothing on a nil manager.
func (mgr *BrokerSecurityManager) StopManager() {
	if mgr == nil {
		return
	}
	zmq4.AuthStop()
}

// Add public keys of peers that may connect.
func (mgr *BrokerSecurityManager) AddPeerKeys(keys ...string) {
	mgr.allowed_peer_keys = append(mgr.allowed_peer_keys, keys...)
}

// Accept any peer again.
func (mgr *BrokerSecurityManager) ResetPeerKeys() {
	mgr.allowed_peer_keys = nil
}

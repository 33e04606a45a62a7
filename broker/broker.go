/*
Package broker implements the message broker peers connect to with transport/zmqconn. It routes
requests by rank and service, and responses back along their route.
*/
package broker

import (
	"fmt"
	"sync"

	"github.com/dermesser/clustermsg/log"
	"github.com/dermesser/clustermsg/routing"
	smgr "github.com/dermesser/clustermsg/securitymanager"

	"github.com/google/uuid"
	zmq "github.com/pebbe/zmq4"
)

type Broker struct {
	// Peers connect here
	router *zmq.Socket
	// Stop() talks to the broker loop over this pair
	control_loop, control_stop *zmq.Socket
	size                       uint32

	lock  sync.Mutex
	table *routing.Table

	running bool
	done    chan struct{}
}

/*
Create a broker for an instance of size ranks, bound to bindurls (e.g. "tcp://*:9650",
"inproc://cmb"). security_manager adds CURVE security; if it is nil, connections are not secured.

Call Start() to begin routing.
*/
func NewBroker(size uint32, bindurls []string, security_manager *smgr.BrokerSecurityManager) (*Broker, error) {
	if size == 0 {
		return nil, fmt.Errorf("broker size must be positive")
	}
	b := &Broker{size: size, table: routing.NewTable(), done: make(chan struct{})}

	var err error
	zmq.SetIpv6(true)

	b.router, err = zmq.NewSocket(zmq.ROUTER)
	if err != nil {
		log.Log(log.LOGLEVEL_ERRORS, "Error when creating Router socket:", err.Error())
		return nil, err
	}
	b.router.SetRouterMandatory(1)

	if err = security_manager.ApplyToBrokerSocket(b.router); err != nil {
		b.router.Close()
		return nil, err
	}

	for _, bindurl := range bindurls {
		log.Log(log.LOGLEVEL_INFO, "Binding broker to", bindurl)
		if err = b.router.Bind(bindurl); err != nil {
			log.Log(log.LOGLEVEL_ERRORS, "Error when binding Router socket:", err.Error())
			b.router.Close()
			return nil, err
		}
	}

	if err = b.setupControl(); err != nil {
		b.router.Close()
		return nil, err
	}
	return b, nil
}

func (b *Broker) setupControl() error {
	endpoint := "inproc://cmb-broker-control-" + uuid.NewString()

	var err error
	if b.control_loop, err = zmq.NewSocket(zmq.PAIR); err != nil {
		return err
	}
	if err = b.control_loop.Bind(endpoint); err != nil {
		b.control_loop.Close()
		return err
	}
	if b.control_stop, err = zmq.NewSocket(zmq.PAIR); err != nil {
		b.control_loop.Close()
		return err
	}
	if err = b.control_stop.Connect(endpoint); err != nil {
		b.control_loop.Close()
		b.control_stop.Close()
		return err
	}
	return nil
}

// Start routing in a new goroutine.
func (b *Broker) Start() {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.running {
		return
	}
	b.running = true
	go b.loop()
}

// Stop the routing loop and wait for it to exit. Sockets stay open until Close().
func (b *Broker) Stop() error {
	b.lock.Lock()
	running := b.running
	b.lock.Unlock()

	if !running {
		return nil
	}
	if _, err := b.control_stop.SendMessage(MAGIC_STOP_STRING); err != nil {
		log.Log(log.LOGLEVEL_ERRORS, "Could not send stop message to broker loop:", err.Error())
		return err
	}
	<-b.done
	log.Log(log.LOGLEVEL_INFO, "Stopped broker")
	return nil
}

// Close all sockets. The broker may not be used after calling Close().
func (b *Broker) Close() {
	b.Stop()
	b.router.Close()
	b.control_loop.Close()
	b.control_stop.Close()
}

func (b *Broker) Size() uint32 {
	return b.size
}

// Number of peers that have said hello.
func (b *Broker) Peers() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.table.Len()
}

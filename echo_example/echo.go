/*
Use either as

	$ echo -config rank1.yaml -srv

or

	$ echo -config rank0.yaml -cl -ranks 1-3

with a cmb-broker running for the same configuration. The server provides the "echo" service on
its rank; the client calls echo.say on every rank in -ranks.
*/
package main

import (
	"flag"
	"fmt"
	"os"
	"syscall"

	"github.com/dermesser/clustermsg"
	"github.com/dermesser/clustermsg/config"
	"github.com/dermesser/clustermsg/proto"
	smgr "github.com/dermesser/clustermsg/securitymanager"
	"github.com/dermesser/clustermsg/transport/zmqconn"
)

func echoHandler(h *clustermsg.Handle, msg *proto.Message) {
	fmt.Println("Called echoHandler:", string(msg.GetPayload()), len(msg.GetPayload()))
	h.Respond(msg, msg.GetPayload())
}

func errorReturningHandler(h *clustermsg.Handle, msg *proto.Message) {
	h.RespondError(msg, syscall.EPERM)
}

func connect(cfg *config.Config, services []string) (*clustermsg.Handle, error) {
	var mgr *smgr.PeerSecurityManager
	if cfg.Security.Enabled {
		var err error
		if mgr, err = smgr.NewPeerSecurityManager(); err != nil {
			return nil, err
		}
		if err = mgr.LoadKeys(cfg.Security.PublicKeyFile, cfg.Security.PrivateKeyFile); err != nil {
			return nil, err
		}
		if err = mgr.LoadBrokerPubkey(cfg.Security.BrokerPublicKeyFile); err != nil {
			return nil, err
		}
	}
	conn, err := zmqconn.Dial(cfg.Broker.Endpoint, cfg.Rank, cfg.Size, services, mgr)
	if err != nil {
		return nil, err
	}
	return clustermsg.Open(conn, clustermsg.WithPoolSize(cfg.Matchtag.PoolSize))
}

func server(cfg *config.Config) error {
	h, err := connect(cfg, append(cfg.Services, "echo"))
	if err != nil {
		return err
	}
	defer h.Close()

	h.RegisterHandler("echo.say", echoHandler)
	h.RegisterHandler("echo.error", errorReturningHandler)
	return h.Run()
}

func client(cfg *config.Config, ranks string) error {
	h, err := connect(cfg, cfg.Services)
	if err != nil {
		return err
	}
	defer h.Close()

	err = h.MultiRPC(ranks, cfg.RPC.Fanout, "echo.say", []byte("helloworld"),
		func(nodeid uint32, errnum syscall.Errno, payload []byte) error {
			if errnum != 0 {
				fmt.Println("Rank", nodeid, "failed:", errnum.Error())
			} else {
				fmt.Println("Rank", nodeid, "responded:", string(payload), len(payload))
			}
			return nil
		})
	if err != nil {
		return err
	}

	_, err = h.RPC(proto.NODEID_ANY, "echo.error", nil)
	fmt.Println("echo.error returned:", err)
	return nil
}

func main() {
	var path, ranks string
	var srv, cl bool

	flag.StringVar(&path, "config", "clustermsg.yaml", "Configuration file.")
	flag.StringVar(&ranks, "ranks", "0", "Ranks to call, e.g. 0-3,7.")
	flag.BoolVar(&srv, "srv", false, "Run as server.")
	flag.BoolVar(&cl, "cl", false, "Run as client.")
	flag.Parse()

	cfg, err := config.Load(path)
	if err == nil {
		err = cfg.ApplyLogging()
	}
	if err == nil {
		if srv {
			err = server(&cfg)
		} else if cl {
			err = client(&cfg, ranks)
		} else {
			err = fmt.Errorf("specify either -srv or -cl")
		}
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

/*
Clustermsg is the messaging layer of a cluster resource manager. Every module (job manager,
scheduler, key-value store) talks to the others through request and response messages that are
multiplexed over one connection per module, the Handle.

Requests are addressed to a rank (or proto.NODEID_ANY) and a topic, e.g. "kvs.fence"; the part
before the first dot names the service that handles them. Each request that expects a response
carries a matchtag from the handle's pool, and the response carries it back:

	h, _ := clustermsg.Open(conn)
	out, err := h.RPC(1, "kvs.get", []byte("key"))

MultiRPC sends the same request to a set of ranks with a bounded number of requests in flight,
RPCAsync returns a Future, and RegisterHandler/Run turn a handle into a service:

	h.RegisterHandler("job-manager.quiescent", func(h *clustermsg.Handle, msg *proto.Message) {
		h.Respond(msg, []byte("idle"))
	})
	h.Run()

Connections are provided by transport/loop (in-process) or transport/zmqconn (ZeroMQ, via the
broker in package broker). Package fence implements the collective commit on top of this, package
quiescence the idle detection.
*/
package clustermsg

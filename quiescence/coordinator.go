/*
Package quiescence answers "are you idle" requests on behalf of a module that hands work to a
dependent subsystem (e.g. the job manager feeding the scheduler). The module is idle only once
the subsystem is, so an incoming request is answered with the subsystem's own answer to a probe.

A probe that was issued before more work was sent to the subsystem is stale: SendingWork()
replaces it with a fresh one.
*/
package quiescence

import (
	"syscall"

	"github.com/dermesser/clustermsg"
	"github.com/dermesser/clustermsg/log"
	"github.com/dermesser/clustermsg/proto"
)

type Coordinator struct {
	h          *clustermsg.Handle
	topic      string
	probeTopic string
	probeRank  uint32

	// The stored quiescence request and the outstanding probe; both nil when idle.
	request *proto.Message
	probe   *clustermsg.Future
}

/*
Serve topic (e.g. "job-manager.quiescent") on h, probing probeTopic (e.g. "sched.quiescent") on
whichever rank provides it.
*/
func New(h *clustermsg.Handle, topic, probeTopic string) *Coordinator {
	c := &Coordinator{h: h, topic: topic, probeTopic: probeTopic, probeRank: proto.NODEID_ANY}
	h.RegisterHandler(topic, c.handleRequest)
	return c
}

// Whether a quiescence request is waiting for its answer.
func (c *Coordinator) Waiting() bool {
	return c.request != nil
}

func (c *Coordinator) handleRequest(h *clustermsg.Handle, msg *proto.Message) {
	if c.request != nil {
		log.Log(log.LOGLEVEL_WARNINGS, "Quiescence: superseding pending", c.topic, "request")
		if err := h.RespondError(c.request, syscall.ECANCELED); err != nil {
			log.Log(log.LOGLEVEL_WARNINGS, "Quiescence: could not cancel pending request:", err)
		}
	}
	c.request = msg.Copy(true)
	c.SendingWork()
}

/*
Must be called after work has been sent to the subsystem. If a quiescence request is stored, the
outstanding probe is abandoned and a new one is sent; otherwise nothing happens.
*/
func (c *Coordinator) SendingWork() {
	if c.request == nil {
		return
	}
	if c.probe != nil {
		c.probe.Destroy()
		c.probe = nil
	}

	log.Log(log.LOGLEVEL_DEBUG, "Quiescence: probing", c.probeTopic)
	f, err := c.h.RPCAsync(c.probeRank, c.probeTopic, nil)
	if err != nil {
		log.Log(log.LOGLEVEL_ERRORS, "Quiescence: could not probe", c.probeTopic, ":", err)
		c.answer(nil, err)
		return
	}
	c.probe = f
	f.Then(c.probeDone)
}

func (c *Coordinator) probeDone(f *clustermsg.Future) {
	if c.request == nil {
		log.Log(log.LOGLEVEL_WARNINGS, "Quiescence: probe answered, but no request is stored")
		return
	}
	if f != c.probe {
		log.Log(log.LOGLEVEL_WARNINGS, "Quiescence: ignoring answer to a replaced probe")
		return
	}
	c.probe = nil
	c.answer(f.Get())
}

func (c *Coordinator) answer(payload []byte, err error) {
	req := c.request
	c.request = nil

	if err != nil {
		err = c.h.RespondError(req, clustermsg.ErrnumOf(err))
	} else {
		log.Log(log.LOGLEVEL_DEBUG, "Quiescence: answering", c.topic, "with", string(payload))
		err = c.h.Respond(req, payload)
	}
	if err != nil {
		log.Log(log.LOGLEVEL_WARNINGS, "Quiescence: could not respond:", err)
	}
}

// Unregister the handler and abandon the probe. A stored request is dropped unanswered.
func (c *Coordinator) Destroy() {
	c.h.UnregisterHandler(c.topic)
	if c.probe != nil {
		c.probe.Destroy()
		c.probe = nil
	}
	c.request = nil
}

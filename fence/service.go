package fence

import (
	"fmt"
	"math"
	"syscall"

	"github.com/dermesser/clustermsg"
	"github.com/dermesser/clustermsg/log"
	"github.com/dermesser/clustermsg/proto"
	"github.com/dermesser/clustermsg/seqsync"
)

// Applies the operations of a complete fence and returns the new commit sequence number.
type Committer interface {
	Commit(name string, flags int, ops [][]byte) (seq int, err error)
}

/*
A Service collects fence contributions arriving as "<service>.fence" requests
(proto.FenceRequest). The first request for a name opens the fence; once nprocs participants have
contributed, the operations are committed and every participant receives a proto.FenceResponse
with the commit sequence number.

"<service>.sync" requests (proto.SyncRequest) are answered once the commit sequence has reached
Rootseq.
*/
type Service struct {
	h         *clustermsg.Handle
	service   string
	committer Committer
	fences    *Registry
	syncs     seqsync.List
	seq       int
	closing   bool
}

func NewService(h *clustermsg.Handle, service string, committer Committer) *Service {
	s := &Service{h: h, service: service, committer: committer, fences: NewRegistry()}

	h.RegisterHandler(service+".fence", s.handleFence)
	h.RegisterHandler(service+".sync", s.handleSync)
	return s
}

// Last commit sequence number.
func (s *Service) Sequence() int {
	return s.seq
}

// The open fences.
func (s *Service) Fences() *Registry {
	return s.fences
}

// Unregister the handlers. Waiting sync requests are answered with ECANCELED.
func (s *Service) Destroy() {
	s.h.UnregisterHandler(s.service + ".fence")
	s.h.UnregisterHandler(s.service + ".sync")

	s.closing = true
	s.syncs.Process(s.seq, true)

	var names []string
	s.fences.Range(func(f *Fence) bool {
		names = append(names, f.Name())
		return true
	})
	for _, name := range names {
		s.fences.Remove(name)
	}
}

func (s *Service) respondError(msg *proto.Message, err error) {
	errnum := clustermsg.ErrnumOf(err)
	log.Log(log.LOGLEVEL_WARNINGS, "Fence service:", msg.Topic, "failed:", err)
	if err := s.h.RespondError(msg, errnum); err != nil {
		log.Log(log.LOGLEVEL_WARNINGS, "Fence service: could not respond:", err)
	}
}

func (s *Service) handleFence(h *clustermsg.Handle, msg *proto.Message) {
	rq := new(proto.FenceRequest)
	if err := proto.Unmarshal(msg.GetPayload(), rq); err != nil {
		s.respondError(msg, syscall.EPROTO)
		return
	}

	f, ok := s.fences.Lookup(rq.Name)
	if !ok {
		var err error
		if f, err = New(rq.Name, int(rq.Nprocs), int(rq.Flags)); err != nil {
			s.respondError(msg, err)
			return
		}
		if err = s.fences.Add(f); err != nil {
			f.Destroy()
			s.respondError(msg, err)
			return
		}
		log.Log(log.LOGLEVEL_DEBUG, "Fence service: opened", rq.Name, "for", rq.Nprocs)
	} else if f.Nprocs() != int(rq.Nprocs) {
		s.respondError(msg, syscall.EINVAL)
		return
	}

	if err := f.AddRequestOps(rq.Ops); err != nil {
		s.respondError(msg, err)
		return
	}
	if err := f.AddRequestCopy(msg); err != nil {
		// the contribution is counted but can never be answered
		s.respondError(msg, err)
		s.abort(f, err)
		return
	}

	if f.CountReached() {
		s.finish(f)
	}
}

// Answer every stored participant of f with err and remove f.
func (s *Service) abort(f *Fence, err error) {
	defer s.fences.Remove(f.Name())

	log.Log(log.LOGLEVEL_ERRORS, "Fence service: aborting", f.Name(), ":", err)
	errnum := clustermsg.ErrnumOf(err)
	if err := f.IterRequestCopies(func(msg *proto.Message) error {
		return s.h.RespondError(msg, errnum)
	}); err != nil {
		log.Log(log.LOGLEVEL_ERRORS, "Fence service: could not answer all participants of", f.Name(), ":", err)
	}
}

func (s *Service) finish(f *Fence) {
	seq, err := s.committer.Commit(f.Name(), f.Flags(), f.Ops())
	if err == nil && seq > math.MaxInt32 {
		// FenceResponse.Sequence is 32 bits wide
		err = fmt.Errorf("commit sequence %d: %w", seq, syscall.EOVERFLOW)
	}
	if err != nil {
		s.abort(f, err)
		return
	}
	defer s.fences.Remove(f.Name())

	s.seq = seq
	f.SetAuxInt(seq)
	log.Log(log.LOGLEVEL_INFO, "Fence service: committed", f.Name(), "as", seq, "with", len(f.Ops()), "operations")

	rsp := &proto.FenceResponse{Name: f.Name(), Sequence: int32(f.AuxInt())}
	if err := f.IterRequestCopies(func(msg *proto.Message) error {
		return s.h.RespondProto(msg, rsp)
	}); err != nil {
		log.Log(log.LOGLEVEL_ERRORS, "Fence service: could not answer all participants of", f.Name(), ":", err)
	}

	s.syncs.Process(s.seq, false)
}

func (s *Service) respondSync(msg *proto.Message) {
	if s.closing {
		s.h.RespondError(msg, syscall.ECANCELED)
		return
	}
	if err := s.h.RespondProto(msg, &proto.FenceResponse{Sequence: int32(s.seq)}); err != nil {
		log.Log(log.LOGLEVEL_WARNINGS, "Fence service: could not answer sync:", err)
	}
}

func (s *Service) handleSync(h *clustermsg.Handle, msg *proto.Message) {
	rq := new(proto.SyncRequest)
	if err := proto.Unmarshal(msg.GetPayload(), rq); err != nil {
		s.respondError(msg, syscall.EPROTO)
		return
	}
	if int(rq.Rootseq) <= s.seq {
		s.respondSync(msg)
		return
	}
	if err := s.syncs.Add(int(rq.Rootseq), msg, s.respondSync, s.seq); err != nil {
		s.respondError(msg, err)
	}
}

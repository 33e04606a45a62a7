package proto

import (
	pb "github.com/gogo/protobuf/proto"
)

// Sent by a peer in a KEEPALIVE_HELLO message to announce its rank and the services it provides.
type Hello struct {
	Rank     uint32   `protobuf:"varint,1,opt,name=rank,proto3" json:"rank,omitempty"`
	Services []string `protobuf:"bytes,2,rep,name=services,proto3" json:"services,omitempty"`
}

func (m *Hello) Reset()         { *m = Hello{} }
func (m *Hello) String() string { return pb.CompactTextString(m) }
func (*Hello) ProtoMessage()    {}

// One participant's contribution to a named fence.
type FenceRequest struct {
	Name   string   `protobuf:"bytes,1,opt,name=name,proto3" json:"name,omitempty"`
	Nprocs int32    `protobuf:"varint,2,opt,name=nprocs,proto3" json:"nprocs,omitempty"`
	Flags  int32    `protobuf:"varint,3,opt,name=flags,proto3" json:"flags,omitempty"`
	Ops    [][]byte `protobuf:"bytes,4,rep,name=ops,proto3" json:"ops,omitempty"`
}

func (m *FenceRequest) Reset()         { *m = FenceRequest{} }
func (m *FenceRequest) String() string { return pb.CompactTextString(m) }
func (*FenceRequest) ProtoMessage()    {}

// Sent to every participant once the fence has been committed.
type FenceResponse struct {
	Name     string `protobuf:"bytes,1,opt,name=name,proto3" json:"name,omitempty"`
	Sequence int32  `protobuf:"varint,2,opt,name=sequence,proto3" json:"sequence,omitempty"`
}

func (m *FenceResponse) Reset()         { *m = FenceResponse{} }
func (m *FenceResponse) String() string { return pb.CompactTextString(m) }
func (*FenceResponse) ProtoMessage()    {}

// Asks to be answered once the commit sequence has reached Rootseq.
type SyncRequest struct {
	Rootseq int32 `protobuf:"varint,1,opt,name=rootseq,proto3" json:"rootseq,omitempty"`
}

func (m *SyncRequest) Reset()         { *m = SyncRequest{} }
func (m *SyncRequest) String() string { return pb.CompactTextString(m) }
func (*SyncRequest) ProtoMessage()    {}

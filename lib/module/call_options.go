package module

import "github.com/ValentinKolb/kvmod/lib/raw"

// Resp selects the protocol shapes of call replies
type Resp int

const (
	Resp2    Resp = iota // maps and sets arrive as arrays, booleans as integers
	Resp3                // all reply kinds
	RespAuto             // protocol of the calling client
)

// CallOptions are the flags of a non-blocking call
type CallOptions struct {
	flags raw.CallFlags
}

// BlockingCallOptions are the flags of a call that may return a promise
type BlockingCallOptions struct {
	flags raw.CallFlags
}

// CallOptionsBuilder builds call options
//
//	opts := module.NewCallOptions().NoWrites().ErrorsAsReplies().Resp(module.Resp3).Build()
type CallOptionsBuilder struct {
	flags raw.CallFlags
}

// NewCallOptions starts with RESP2 replies, writes allowed and
// pre-execution failures reported as UnknownReply
func NewCallOptions() *CallOptionsBuilder {
	return &CallOptionsBuilder{}
}

// NoWrites rejects commands flagged as write
func (b *CallOptionsBuilder) NoWrites() *CallOptionsBuilder {
	b.flags |= raw.CallNoWrites
	return b
}

// ErrorsAsReplies reports failures before execution (unknown command,
// rejected write) as error replies
func (b *CallOptionsBuilder) ErrorsAsReplies() *CallOptionsBuilder {
	b.flags |= raw.CallErrorsAsReplies
	return b
}

// Resp selects the protocol of the replies
func (b *CallOptionsBuilder) Resp(r Resp) *CallOptionsBuilder {
	b.flags &^= raw.CallResp3 | raw.CallRespAuto
	switch r {
	case Resp3:
		b.flags |= raw.CallResp3
	case RespAuto:
		b.flags |= raw.CallRespAuto
	}
	return b
}

// Build returns options for CallExt
func (b *CallOptionsBuilder) Build() CallOptions {
	return CallOptions{flags: b.flags}
}

// BuildBlocking returns options for CallBlocking
func (b *CallOptionsBuilder) BuildBlocking() BlockingCallOptions {
	return BlockingCallOptions{flags: b.flags | raw.CallBlocking}
}

// Flags returns the raw call flags
func (o CallOptions) Flags() raw.CallFlags { return o.flags }

// Flags returns the raw call flags
func (o BlockingCallOptions) Flags() raw.CallFlags { return o.flags }

// defaultCallOptions are used by Context.Call
var defaultCallOptions = NewCallOptions().ErrorsAsReplies().Resp(Resp3).Build()

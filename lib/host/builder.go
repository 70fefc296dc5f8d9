package host

import "github.com/ValentinKolb/kvmod/lib/raw"

// frame is an aggregate reply that still waits for elements
type frame struct {
	r    *Reply
	want int    // missing elements (pairs for maps)
	key  *Reply // pending map key
}

// replyBuilder assembles the ReplyWith* calls of one context into a reply tree
type replyBuilder struct {
	root  *Reply
	stack []*frame
	extra int // top level replies written after the first one
}

// add appends a scalar reply or opens an aggregate reply with n elements
func (b *replyBuilder) add(r *Reply, n int) {
	b.attach(r)
	if n > 0 {
		b.stack = append(b.stack, &frame{r: r, want: n})
	}
}

func (b *replyBuilder) attach(r *Reply) {
	if len(b.stack) == 0 {
		if b.root == nil {
			b.root = r
		} else {
			b.extra++
		}
		return
	}

	top := b.stack[len(b.stack)-1]
	if top.r.Type == raw.ReplyMap {
		if top.key == nil {
			top.key = r
			return
		}
		top.r.Map = append(top.r.Map, Pair{Key: top.key, Value: r})
		top.key = nil
	} else {
		top.r.Elems = append(top.r.Elems, r)
	}

	top.want--
	if top.want == 0 {
		b.stack = b.stack[:len(b.stack)-1]
	}
}

// result returns the reply, nil if nothing was written
func (b *replyBuilder) result() (r *Reply, complete bool) {
	return b.root, len(b.stack) == 0
}

func (b *replyBuilder) written() bool {
	return b.root != nil
}

package emit

import (
	"fmt"

	"github.com/gyuseokByeon/machcode/internal/code"
	"github.com/gyuseokByeon/machcode/internal/coreerr"
	"github.com/gyuseokByeon/machcode/internal/operand"
	"github.com/gyuseokByeon/machcode/internal/zone"
)

// Builder records each intended emission as a Node in an intrusive
// doubly linked list, deferring byte production to a later serialize
// pass (spec.md §4.E).
type Builder struct {
	Base

	arena       zone.Zone[Node]
	first, last *Node
	count       int
}

// NewBuilder constructs an unattached Builder.
func NewBuilder() *Builder {
	bld := &Builder{}
	bld.kind = EmitterBuilder
	return bld
}

// Attach registers this builder as the holder's writer.
func (bld *Builder) Attach(holder *code.Holder) error {
	return bld.Base.Attach(bld, holder, holder.Info().Arch)
}

// onAttach allocates the node list's leading Sentinel, mirroring
// AsmJit's Builder allocating its list head on attach.
func (bld *Builder) onAttach(*code.Holder) error {
	_, err := bld.Sentinel()
	return err
}

func (bld *Builder) onDetach() {}

// Detach releases this builder's attachment. It does not clear the node
// list: a detached Builder's recorded nodes remain inspectable.
func (bld *Builder) Detach() { bld.Base.Detach(bld) }

// First and Last expose the node list's ends for passes that walk it.
func (bld *Builder) First() *Node { return bld.first }
func (bld *Builder) Last() *Node  { return bld.last }

// Len returns the number of nodes ever created (including removed ones).
func (bld *Builder) Len() int { return bld.count }

func (bld *Builder) newNode(kind NodeKind) (*Node, error) {
	if err := bld.RequireAttached(); err != nil {
		return nil, err
	}
	idx := bld.arena.New(Node{Kind: kind, SectionID: bld.cursorSectionID})
	n := bld.arena.Get(idx)
	bld.count++
	if bld.last == nil {
		bld.first, bld.last = n, n
	} else {
		n.prev = bld.last
		bld.last.next = n
		bld.last = n
	}
	return n, nil
}

// Emit appends an Inst node.
func (bld *Builder) Emit(instID uint32, operands ...operand.Operand) error {
	bld.ConsumeNext()
	n, err := bld.newNode(NodeInst)
	if err != nil {
		return err
	}
	n.InstID = instID
	n.Operands = operands
	return nil
}

// Bind appends a Label node marking where labelID is to be bound once
// Serialize replays the stream and its real offset is known. This
// shadows the promoted Base.Bind, which assumes an already-known cursor
// offset that a deferred node graph doesn't have yet.
func (bld *Builder) Bind(labelID uint32) error {
	n, err := bld.newNode(NodeLabel)
	if err != nil {
		return err
	}
	n.LabelID = labelID
	return nil
}

// Align appends an Align node.
func (bld *Builder) Align(mode AlignMode, alignment uint32) error {
	if err := CheckAlignment(alignment); err != nil {
		return err
	}
	n, err := bld.newNode(NodeAlign)
	if err != nil {
		return err
	}
	n.AlignMode = mode
	n.AlignTo = alignment
	return nil
}

// Embed appends an EmbedData node holding data verbatim.
func (bld *Builder) Embed(data []byte) error {
	n, err := bld.newNode(NodeEmbedData)
	if err != nil {
		return err
	}
	n.Data = data
	n.DataCount = 1
	return nil
}

// EmbedDataArray appends an EmbedData node with array/repeat semantics
// identical to Assembler.EmbedDataArray.
func (bld *Builder) EmbedDataArray(data []byte, count int, repeat bool) error {
	n, err := bld.newNode(NodeEmbedData)
	if err != nil {
		return err
	}
	n.Data = data
	n.DataCount = count
	n.DataRepeat = repeat
	return nil
}

// EmbedConstPool appends a ConstPool node.
func (bld *Builder) EmbedConstPool(labelID uint32, pool []byte, poolAlignment uint32) error {
	n, err := bld.newNode(NodeConstPool)
	if err != nil {
		return err
	}
	n.LabelID = labelID
	n.PoolBytes = pool
	n.PoolAlignment = poolAlignment
	return nil
}

// Comment appends a Comment node; it produces no bytes when serialized.
func (bld *Builder) Comment(text string) error {
	n, err := bld.newNode(NodeComment)
	if err != nil {
		return err
	}
	n.CommentText = text
	return nil
}

// Sentinel appends a Sentinel marker node, used to delimit regions (e.g.
// a function's end) for later passes.
func (bld *Builder) Sentinel() (*Node, error) { return bld.newNode(NodeSentinel) }

// Serialize walks the node list in order and feeds an Assembler attached
// to the same holder, producing byte-identical output to hand-writing
// the same instruction sequence directly (spec.md §8, scenario 5).
func (bld *Builder) Serialize(asm *Assembler) error {
	currentSection := bld.cursorSectionID
	if err := asm.Section(currentSection); err != nil {
		return err
	}
	for n := bld.first; n != nil; n = n.next {
		if n.Removed() {
			continue
		}
		if n.SectionID != currentSection {
			if err := asm.Section(n.SectionID); err != nil {
				return err
			}
			currentSection = n.SectionID
		}
		if err := bld.serializeOne(asm, n); err != nil {
			return err
		}
	}
	return nil
}

func (bld *Builder) serializeOne(asm *Assembler, n *Node) error {
	switch n.Kind {
	case NodeInst, NodeJump:
		return asm.Emit(n.InstID, n.Operands...)
	case NodeLabel:
		return asm.Bind(n.LabelID)
	case NodeAlign:
		return asm.Align(n.AlignMode, n.AlignTo)
	case NodeEmbedData:
		return asm.EmbedDataArray(n.Data, n.DataCount, n.DataRepeat)
	case NodeConstPool:
		return asm.EmbedConstPool(n.LabelID, n.PoolBytes, n.PoolAlignment)
	case NodeComment:
		asm.Comment(n.CommentText)
		return nil
	case NodeSentinel, NodeFunc, NodeFuncRet, NodeInvoke:
		// Prolog/epilog synthesis and register allocation are external
		// collaborators; by the time Serialize runs, an allocator pass
		// is expected to have lowered these into concrete Inst nodes.
		// A bare Builder pipeline that never ran an allocator simply
		// treats them as no-ops.
		return nil
	default:
		return fmt.Errorf("%w: unknown node kind %d", coreerr.ErrInvalidState, n.Kind)
	}
}

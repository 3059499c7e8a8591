package emit

import (
	"fmt"
	"strings"

	"github.com/gyuseokByeon/machcode/internal/operand"
)

// NodeKind tags which payload fields of a Node are meaningful (spec.md
// §3, "Node").
type NodeKind uint8

const (
	NodeInst NodeKind = iota
	NodeLabel
	NodeAlign
	NodeEmbedData
	NodeConstPool
	NodeComment
	NodeSentinel
	NodeFunc
	NodeFuncRet
	NodeInvoke
	NodeJump
)

func (k NodeKind) String() string {
	switch k {
	case NodeInst:
		return "inst"
	case NodeLabel:
		return "label"
	case NodeAlign:
		return "align"
	case NodeEmbedData:
		return "embed_data"
	case NodeConstPool:
		return "const_pool"
	case NodeComment:
		return "comment"
	case NodeSentinel:
		return "sentinel"
	case NodeFunc:
		return "func"
	case NodeFuncRet:
		return "func_ret"
	case NodeInvoke:
		return "invoke"
	case NodeJump:
		return "jump"
	default:
		return "unknown"
	}
}

// NodeFlags are the per-node bits of spec.md §4.E.
type NodeFlags uint8

const (
	NodeFlagRemoved NodeFlags = 1 << iota
	NodeFlagInlineComment
	NodeFlagRemovable
)

// Node is one entry of the Builder's intrusive doubly linked list. A
// single struct carries every kind's payload rather than a Go interface
// per kind, so that passes can walk the list without a type switch on
// every node and so that removal/relinking stays O(1) pointer surgery.
type Node struct {
	prev, next *Node

	Kind  NodeKind
	Flags NodeFlags

	// SectionID is the section this node targets; the Builder stamps it
	// from its own cursor at node-creation time so Serialize can replay
	// section switches without a dedicated node kind.
	SectionID uint32

	// Pos is an optional source-position marker (e.g. a line number from
	// whatever produced the node stream); 0 means unset.
	Pos int

	// NodeInst / NodeJump
	InstID   uint32
	Operands []operand.Operand

	// NodeLabel
	LabelID uint32

	// NodeAlign
	AlignMode AlignMode
	AlignTo   uint32

	// NodeEmbedData
	Data       []byte
	DataCount  int
	DataRepeat bool

	// NodeConstPool
	PoolBytes     []byte
	PoolAlignment uint32

	// NodeComment
	CommentText string

	// NodeFunc / NodeFuncRet / NodeInvoke / NodeJump, populated by a
	// Compiler; a plain Builder never sets these.
	Func           *FuncDetail
	Invoke         *InvokeDetail
	JumpAnnotation *JumpAnnotation
}

// Removed reports whether a pass has marked this node dead.
func (n *Node) Removed() bool { return n.Flags&NodeFlagRemoved != 0 }

// Remove marks the node dead; Serialize skips it. Removal never unlinks
// the node (the list stays walkable for any pass still iterating it).
func (n *Node) Remove() { n.Flags |= NodeFlagRemoved }

// Prev and Next expose the intrusive list links for passes that need to
// walk or splice around a node.
func (n *Node) Prev() *Node { return n.prev }
func (n *Node) Next() *Node { return n.next }

// String renders a one-line debug form, e.g. "inst#1 op=[r3:0, 0x1]" or
// "label#2", for ad-hoc node dumps.
func (n *Node) String() string {
	switch n.Kind {
	case NodeInst, NodeJump:
		ops := make([]string, len(n.Operands))
		for i, op := range n.Operands {
			ops[i] = op.String()
		}
		return fmt.Sprintf("%s#%d op=[%s]", n.Kind, n.InstID, strings.Join(ops, ", "))
	case NodeLabel:
		return fmt.Sprintf("%s#%d", n.Kind, n.LabelID)
	case NodeAlign:
		return fmt.Sprintf("%s to=%d", n.Kind, n.AlignTo)
	case NodeEmbedData:
		return fmt.Sprintf("%s len=%d count=%d repeat=%t", n.Kind, len(n.Data), n.DataCount, n.DataRepeat)
	case NodeConstPool:
		return fmt.Sprintf("%s#%d len=%d", n.Kind, n.LabelID, len(n.PoolBytes))
	case NodeComment:
		return fmt.Sprintf("%s %q", n.Kind, n.CommentText)
	default:
		return n.Kind.String()
	}
}

package flow

import (
	"fmt"
	"strings"
	"weak"

	"github.com/samber/lo"
	"go.uber.org/multierr"
)

// Bin is an element which contains other elements. Bin owns its children,
// children refer to the bin with non-owning reference.
type Bin struct {
	*Element
	children []Node
	// pipeline is set when bin is the base of the pipeline.
	pipeline *Pipeline
}

// NewBin returns new empty bin.
func NewBin(name string) *Bin {
	if name == "" {
		name = uniqueName("bin")
	}
	b := &Bin{
		Element: newElement(name, "bin", []string{SignalElementAdded, SignalElementRemoved}),
	}
	b.Element.bin = b
	return b
}

// Add adds nodes to the bin. Names of children must be unique. Nodes
// which belong to another bin are moved. If any node cannot be added,
// bin is not changed. SignalElementAdded is emitted once all nodes are
// added and its handler error doesn't revert the addition.
func (b *Bin) Add(nodes ...Node) error {
	names := make(map[string]struct{}, len(b.children)+len(nodes))
	for _, c := range b.children {
		names[c.Name()] = struct{}{}
	}
	for _, n := range nodes {
		if _, ok := names[n.Name()]; ok {
			return fmt.Errorf("%v: add %v: %w", b, n.Name(), ErrDuplicateName)
		}
		names[n.Name()] = struct{}{}
		if nb := n.Base().bin; nb != nil {
			for ancestor := b; ancestor != nil; ancestor = ancestor.Parent() {
				if ancestor == nb {
					return fmt.Errorf("%v: add %v: %w", b, n.Name(), ErrCycle)
				}
			}
		}
	}

	for _, n := range nodes {
		e := n.Base()
		if old := e.Parent(); old != nil {
			old.detach(n)
		}
		e.parent = weak.Make(b)
		b.children = append(b.children, n)
		structureChanged()
		b.logger().Debug(fmt.Sprintf("%v: added %v", b, e))
	}
	for _, n := range nodes {
		if err := b.Emit(SignalElementAdded, n.Base()); err != nil {
			return err
		}
	}
	return nil
}

// Remove unlinks all pads of the node and removes it from the bin.
func (b *Bin) Remove(n Node) error {
	if b.indexOf(n) < 0 {
		return fmt.Errorf("%v: remove %v: %w", b, n.Name(), ErrNotAChild)
	}
	if err := n.Base().unlinkAll(); err != nil {
		return err
	}
	b.detach(n)
	b.logger().Debug(fmt.Sprintf("%v: removed %v", b, n.Name()))
	return b.Emit(SignalElementRemoved, n.Base())
}

func (b *Bin) indexOf(n Node) int {
	_, i, ok := lo.FindIndexOf(b.children, func(c Node) bool {
		return c.Base() == n.Base()
	})
	if !ok {
		return -1
	}
	return i
}

// detach removes child without unlinking its pads.
func (b *Bin) detach(n Node) {
	i := b.indexOf(n)
	if i < 0 {
		return
	}
	b.children = append(b.children[:i:i], b.children[i+1:]...)
	n.Base().parent = weak.Pointer[Bin]{}
	structureChanged()
}

// Children returns direct children of the bin in order of addition.
func (b *Bin) Children() []Node {
	return append([]Node(nil), b.children...)
}

// ByName returns direct child by name or nil.
func (b *Bin) ByName(name string) Node {
	n, _ := lo.Find(b.children, func(c Node) bool {
		return c.Name() == name
	})
	return n
}

// Lookup returns descendant by slash-separated path of names.
func (b *Bin) Lookup(path string) Node {
	names := strings.Split(path, "/")
	var n Node = b
	for _, name := range names {
		nb := n.Base().bin
		if nb == nil {
			return nil
		}
		if n = nb.ByName(name); n == nil {
			return nil
		}
	}
	return n
}

// Elements returns all elements of the bin and nested bins, depth-first
// in order of addition. Bins themselves are not included.
func (b *Bin) Elements() []*Element {
	var elements []*Element
	for _, c := range b.children {
		if cb := c.Base().bin; cb != nil {
			elements = append(elements, cb.Elements()...)
			continue
		}
		elements = append(elements, c.Base())
	}
	return elements
}

// AddGhostPad exposes internal pad of descendant element as a pad of the
// bin. Data which crosses the ghost pad is forwarded to the target.
func (b *Bin) AddGhostPad(name string, target *Pad) (*Pad, error) {
	owner := target.Owner()
	if owner == nil || !b.isAncestorOf(owner) {
		return nil, fmt.Errorf("%v: ghost pad %q for %v: %w", b, name, target, ErrNotAChild)
	}
	if target.ghost != nil {
		return nil, fmt.Errorf("%v: ghost pad %q for %v: %w", b, name, target, ErrAlreadyLinked)
	}
	ghost := NewPad(name, target.direction, Caps{})
	ghost.target = target
	ghost.policy = target.policy
	if err := b.AddPad(ghost); err != nil {
		return nil, err
	}
	target.ghost = ghost
	return ghost, nil
}

func (b *Bin) isAncestorOf(e *Element) bool {
	for p := e.Parent(); p != nil; p = p.Parent() {
		if p == b {
			return true
		}
	}
	return false
}

// State returns the lowest state reached by the bin and its children.
func (b *Bin) State() State {
	s := b.state
	for _, c := range b.children {
		s = min(s, c.State())
	}
	return s
}

// highest returns the highest state reached by the bin and its children.
func (b *Bin) highest() State {
	s := b.state
	for _, c := range b.children {
		if cb := c.Base().bin; cb != nil {
			s = max(s, cb.highest())
			continue
		}
		s = max(s, c.State())
	}
	return s
}

// SetState moves children and the bin itself to the target state. Every
// transition is applied to children in order of addition and then to the
// bin. Upward transition stops at the first failure, transitions already
// applied are not reverted. Downward transition is applied to all children
// and errors are combined.
func (b *Bin) SetState(target State) error {
	if high := b.highest(); high > target {
		if err := b.walk(high, target); err != nil {
			return err
		}
	}
	if low := b.State(); low < target {
		return b.walk(low, target)
	}
	return nil
}

func (b *Bin) walk(from, to State) error {
	for _, t := range steps(from, to) {
		if err := b.step(t); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bin) step(t Transition) error {
	var errs error
	for _, c := range b.Children() {
		if !needsTransition(c, t) {
			continue
		}
		if err := c.SetState(t.To); err != nil {
			if t.Upward() {
				return &StateChangeError{Element: b.name, Transition: t, Err: err}
			}
			errs = multierr.Append(errs, err)
		}
	}
	if errs != nil {
		return &StateChangeError{Element: b.name, Transition: t, Err: errs}
	}
	if b.state != t.From {
		return nil
	}
	return b.Element.apply(t)
}

func needsTransition(n Node, t Transition) bool {
	if t.Upward() {
		return n.State() < t.To
	}
	if nb := n.Base().bin; nb != nil {
		return nb.highest() > t.To
	}
	return n.State() > t.To
}

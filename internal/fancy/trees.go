package fancy

import (
	"github.com/charmbracelet/lipgloss/tree"
)

// ComponentTree is a styled tree with a titled root.
type ComponentTree struct {
	tree *tree.Tree
}

// NewComponentTree creates a tree whose root shows title.
func NewComponentTree(title string) *ComponentTree {
	return &ComponentTree{tree: Tree().Root(title)}
}

// Tree returns the underlying tree
func (c *ComponentTree) Tree() *tree.Tree {
	return c.tree
}

// AddChild adds a child node to the root.
func (c *ComponentTree) AddChild(child any) *ComponentTree {
	c.tree.Child(child)
	return c
}

func (c *ComponentTree) String() string {
	return c.tree.String()
}

// NodeTree starts a tree for one display node.
func NodeTree(id string, primary bool) *ComponentTree {
	title := NodeText(id)
	if primary {
		title += " " + PrimaryText("(primary)")
	}
	return NewComponentTree(title)
}

// ModuleTree starts a tree for one playlist module.
func ModuleTree(name, runtime string) *ComponentTree {
	return NewComponentTree(ModuleText(name) + " " + RuntimeText("["+runtime+"]"))
}

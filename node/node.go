package node

import (
	"iter"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// An XML element. Nodes are treated as immutable values:
// the With* helpers return modified copies and never touch the receiver.
type Node struct {
	// Attributes in document order, keyed by their qualified name (e.g. "xml:lang").
	// May be nil when the element has none.
	Attributes *orderedmap.OrderedMap[string, string]
	Children   []Node
	Name       string
	Text       string
}

// Creates an element with the given name and attribute pairs (key, value, key, value...).
func New(name string, attrs ...string) Node {
	n := Node{Name: name}
	if len(attrs) > 0 {
		n.Attributes = orderedmap.New[string, string]()
		for i := 0; i+1 < len(attrs); i += 2 {
			n.Attributes.Set(attrs[i], attrs[i+1])
		}
	}
	return n
}

// Returns true if the Node contains the attribute key.
func (n Node) HasAttribute(key string) bool {
	if n.Attributes == nil {
		return false
	}
	_, found := n.Attributes.Get(key)
	return found
}

// Returns true if there is a child with the same name as the parameter.
func (n Node) HasTag(name string) bool {
	return n.Find(name) != nil
}

// Finds an attribute value by its name.
// Returns an empty string if not found.
func (n Node) Get(key string) string {
	if n.Attributes == nil {
		return ""
	}
	ret, _ := n.Attributes.Get(key)
	return ret
}

// Finds an attribute value by its name.
// Returns nil if not found.
func (n Node) GetOptional(key string) *string {
	if n.Attributes == nil {
		return nil
	}
	ret, found := n.Attributes.Get(key)
	if found {
		return &ret
	}
	return nil
}

// Finds the first matching child by its name.
// Returns nil if not found.
func (n Node) Find(name string) *Node {
	for _, child := range n.Children {
		if child.Name == name {
			return &child
		}
	}
	return nil
}

// Finds the text of the first matching child by its name.
// Returns an empty string if not found.
func (n Node) FindTextSafe(name string) string {
	if child := n.Find(name); child != nil {
		return child.Text
	}
	return ""
}

// Finds all matching children by name.
// For the iter.Seq2, the first item is the position of the child element,
// the second item is the element.
func (n Node) FindAll(name string) iter.Seq2[int, Node] {
	return func(yield func(int, Node) bool) {
		for i, child := range n.Children {
			if child.Name == name {
				if !yield(i, child) {
					return
				}
			}
		}
	}
}

// Follows the first matching child at each step of path.
// Returns nil if any step is missing.
func (n Node) Path(path ...string) *Node {
	cur := &n
	for _, name := range path {
		if cur = cur.Find(name); cur == nil {
			return nil
		}
	}
	return cur
}

// Returns the text of the element at path, or nil when it does not exist.
func (n Node) PathText(path ...string) *string {
	if found := n.Path(path...); found != nil {
		return &found.Text
	}
	return nil
}

// Returns a copy of n where every element matching path is replaced by the result of f.
// Elements for which f returns false are dropped.
// A path that matches nothing returns n unchanged.
func (n Node) UpdatePath(f func(Node) (Node, bool), path ...string) Node {
	if len(path) == 0 {
		return n
	}
	var children []Node
	changed := false
	for _, child := range n.Children {
		if child.Name != path[0] {
			children = append(children, child)
			continue
		}
		changed = true
		if len(path) > 1 {
			children = append(children, child.UpdatePath(f, path[1:]...))
		} else if updated, keep := f(child); keep {
			children = append(children, updated)
		}
	}
	if !changed {
		return n
	}
	n.Children = children
	return n
}

// Returns a copy of n without the elements at path.
func (n Node) WithoutPath(path ...string) Node {
	return n.UpdatePath(func(Node) (Node, bool) { return Node{}, false }, path...)
}

// Returns a copy of n where the elements at path have their text replaced.
func (n Node) WithPathText(text string, path ...string) Node {
	return n.UpdatePath(func(child Node) (Node, bool) {
		child.Text = text
		return child, true
	}, path...)
}

// Returns a copy of n with the attribute set.
func (n Node) WithAttribute(key, value string) Node {
	attrs := orderedmap.New[string, string]()
	if n.Attributes != nil {
		for pair := n.Attributes.Oldest(); pair != nil; pair = pair.Next() {
			attrs.Set(pair.Key, pair.Value)
		}
	}
	attrs.Set(key, value)
	n.Attributes = attrs
	return n
}

// Returns a copy of n with the child appended.
func (n Node) WithChild(child Node) Node {
	children := make([]Node, 0, len(n.Children)+1)
	children = append(children, n.Children...)
	n.Children = append(children, child)
	return n
}

// Converts the node to an XML representation.
func (n Node) String() string {
	w := NewNodeWriter()
	w.WriteNode(n)
	return w.String()
}

// Serializes the text and children of n without n's own tag.
// Used for the synthetic root returned by ParseForest.
func (n Node) InnerString() string {
	w := NewNodeWriter()
	if n.Text != "" {
		w.Text(n.Text)
	}
	for _, child := range n.Children {
		w.WriteNode(child)
	}
	return w.String()
}

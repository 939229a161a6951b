package node

import (
	"errors"
	"io"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	xpp "github.com/mmcdole/goxpp"
)

const xmlNamespaceURI = "http://www.w3.org/XML/1998/namespace"

// Reads the next Node from the XMLPull Parser.
// Parser must be positioned on a StartTag.
func ParseNextNode(parser *xpp.XMLPullParser) (*Node, error) {
	if parser.Event != xpp.StartTag {
		return nil, errors.New("expected start tag")
	}
	ret := new(Node)
	ret.Name = elementName(parser)
	if len(parser.Attrs) > 0 {
		ret.Attributes = orderedmap.New[string, string]()
		for _, attr := range parser.Attrs {
			ret.Attributes.Set(attributeName(parser, attr.Name.Space, attr.Name.Local), attr.Value)
		}
	}

	text := new(strings.Builder)
	for {
		eventType, err := parser.Next()
		if err != nil {
			return nil, err
		} else if eventType == xpp.StartTag {
			child, err := ParseNextNode(parser)
			if err != nil {
				return nil, err
			}
			ret.Children = append(ret.Children, *child)
		} else if eventType == xpp.Text {
			text.WriteString(parser.Text)
		} else if eventType == xpp.EndTag {
			ret.Text = text.String()
			if len(ret.Children) > 0 && strings.TrimSpace(ret.Text) == "" {
				// Formatting between child elements
				ret.Text = ""
			}
			return ret, nil
		} else if eventType == xpp.EndDocument {
			return nil, errors.New("unexpected end of document before end of stanza")
		}
	}
}

// Parses a chunk that may hold any number of sibling elements.
// The elements become children of a synthetic, unnamed root node;
// whitespace between them is discarded.
func ParseForest(xmpp string) (*Node, error) {
	parser := NewStringPullParser(xmpp)
	root := new(Node)
	for {
		eventType, err := parser.Next()
		if err != nil {
			return nil, err
		}
		switch eventType {
		case xpp.StartTag:
			child, err := ParseNextNode(parser)
			if err != nil {
				return nil, err
			}
			root.Children = append(root.Children, *child)
		case xpp.Text:
			if strings.TrimSpace(parser.Text) != "" {
				root.Text += parser.Text
			}
		case xpp.EndTag:
			return nil, errors.New("unexpected end tag </" + parser.Name + ">")
		case xpp.EndDocument:
			return root, nil
		}
	}
}

// Parse an XMPP string containing a single element.
// Note that this will return an error if all tags are not properly closed.
func ParseXmppString(xmpp string) (*Node, error) {
	parser := NewStringPullParser(xmpp)
	if _, err := parser.Next(); err != nil {
		return nil, err
	}
	return ParseNextNode(parser)
}

// Creates a new XMLPullParser for a given string.
func NewStringPullParser(xmpp string) *xpp.XMLPullParser {
	reader := strings.NewReader(strings.Trim(xmpp, " "))
	crReader := func(charset string, input io.Reader) (io.Reader, error) {
		return input, nil
	}
	return xpp.NewXMLPullParser(reader, false, crReader)
}

// Reports whether err was caused by input that ended in the middle of an element,
// meaning more data may complete it.
func IsIncomplete(err error) bool {
	return err != nil && strings.HasSuffix(err.Error(), "unexpected EOF")
}

// The decoder resolves prefixes to namespace URLs; map them back to what was on the wire.
func elementName(parser *xpp.XMLPullParser) string {
	if parser.Space == "" {
		return parser.Name
	}
	if prefix, ok := parser.Spaces[parser.Space]; ok {
		if prefix == "" {
			return parser.Name
		}
		return prefix + ":" + parser.Name
	}
	// Undeclared prefix, the decoder leaves it as is
	return parser.Space + ":" + parser.Name
}

func attributeName(parser *xpp.XMLPullParser, space, local string) string {
	switch space {
	case "":
		return local
	case "xmlns":
		return "xmlns:" + local
	case xmlNamespaceURI:
		return "xml:" + local
	}
	if prefix, ok := parser.Spaces[space]; ok && prefix != "" {
		return prefix + ":" + local
	}
	return space + ":" + local
}

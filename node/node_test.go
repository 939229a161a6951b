package node

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseForestSiblings(t *testing.T) {
	forest, err := ParseForest(`<presence id='1'><show>chat</show></presence>
		<iq type='get' id='2'/><presence id='3'/>`)
	require.NoError(t, err)
	require.Len(t, forest.Children, 3)
	require.Equal(t, "presence", forest.Children[0].Name)
	require.Equal(t, "iq", forest.Children[1].Name)
	require.Equal(t, "3", forest.Children[2].Get("id"))
	require.Equal(t, "chat", forest.Children[0].FindTextSafe("show"))
}

func TestParseKeepsAttributeOrderAndPrefixes(t *testing.T) {
	n, err := ParseXmppString(`<presence to='a@b' from='c@d' xml:lang='en' xmlns:x='urn:x' x:flag='1'/>`)
	require.NoError(t, err)

	var keys []string
	for pair := n.Attributes.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	require.Equal(t, []string{"to", "from", "xml:lang", "xmlns:x", "x:flag"}, keys)
	require.Equal(t, "en", n.Get("xml:lang"))
}

func TestParseDefaultNamespace(t *testing.T) {
	n, err := ParseXmppString(`<iq><query xmlns='jabber:iq:riotgames:roster'><item jid='x'/></query></iq>`)
	require.NoError(t, err)
	query := n.Find("query")
	require.NotNil(t, query)
	require.Equal(t, "jabber:iq:riotgames:roster", query.Get("xmlns"))
	require.NotNil(t, query.Find("item"))
}

func TestIncompleteChunk(t *testing.T) {
	for _, chunk := range []string{
		`<presence><show>chat</show><games><league_of_legends><st>ch`,
		`<presence id='a`,
		`<presence/><presence>`,
	} {
		_, err := ParseForest(chunk)
		require.Error(t, err, chunk)
		require.True(t, IsIncomplete(err), "%s: %v", chunk, err)
	}

	_, err := ParseForest(`<presence><show>chat</show></presence></iq>`)
	require.Error(t, err)
	require.False(t, IsIncomplete(err))
}

func TestPathHelpers(t *testing.T) {
	n, err := ParseXmppString(`<presence><games><league_of_legends><st>dnd</st><p>x</p></league_of_legends><bacon/></games></presence>`)
	require.NoError(t, err)

	require.Equal(t, "dnd", *n.PathText("games", "league_of_legends", "st"))
	require.Nil(t, n.PathText("games", "valorant", "p"))

	stripped := n.WithoutPath("games", "bacon")
	require.Nil(t, stripped.Path("games", "bacon"))
	// the receiver is untouched
	require.NotNil(t, n.Path("games", "bacon"))

	updated := n.WithPathText("away", "games", "league_of_legends", "st")
	require.Equal(t, "away", *updated.PathText("games", "league_of_legends", "st"))
	require.Equal(t, "dnd", *n.PathText("games", "league_of_legends", "st"))

	// missing paths are a no-op
	same := n.WithoutPath("status").WithPathText("x", "games", "valorant", "st")
	require.Equal(t, n.String(), same.String())
}

func TestWriteNodeRoundTrip(t *testing.T) {
	raw := `<message from='a@b/c' type='chat'><body>1 &lt; 2 &amp; &#9;tab</body></message>`
	n, err := ParseXmppString(raw)
	require.NoError(t, err)
	require.Equal(t, "1 < 2 & \ttab", n.FindTextSafe("body"))

	reparsed, err := ParseXmppString(n.String())
	require.NoError(t, err)
	require.Equal(t, n.FindTextSafe("body"), reparsed.FindTextSafe("body"))
	require.Equal(t, "a@b/c", reparsed.Get("from"))
}

func TestInnerString(t *testing.T) {
	forest, err := ParseForest(`<a x='1'/><b>text</b>`)
	require.NoError(t, err)
	out := forest.InnerString()
	require.True(t, strings.HasPrefix(out, "<a"), out)

	again, err := ParseForest(out)
	require.NoError(t, err)
	require.Len(t, again.Children, 2)
	require.Equal(t, "text", again.Children[1].Text)
}

func TestNewAndWithAttribute(t *testing.T) {
	n := New("presence", "id", "1")
	m := n.WithAttribute("to", "room@muc")
	require.False(t, n.HasAttribute("to"))
	require.True(t, m.HasAttribute("to"))
	require.Equal(t, "1", m.Get("id"))

	withChild := m.WithChild(New("show"))
	require.Len(t, m.Children, 0)
	require.True(t, withChild.HasTag("show"))
}

func BenchmarkParseForest(b *testing.B) {
	chunk := `<presence id='1'><show>chat</show><games><league_of_legends><st>chat</st><p>{}</p></league_of_legends></games></presence>`
	for range b.N {
		if _, err := ParseForest(chunk); err != nil {
			b.Fatal(err)
		}
	}
}

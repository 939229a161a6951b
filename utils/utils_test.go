package utils

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIndexFold(t *testing.T) {
	require.Equal(t, 4, IndexFold("abc <PRESENCE id='1'>", "<presence"))
	require.Equal(t, -1, IndexFold("abc \x1cpresence", "<presence"))
	require.Equal(t, -1, IndexFold("<presenc", "<presence"))
	require.Equal(t, 0, IndexFold("anything", ""))
	require.Equal(t, 3, IndexFold("日<Query", "<query"))
}

func TestPartialSuffixFold(t *testing.T) {
	require.Equal(t, 23, PartialSuffixFold("<iq type='get' id='a'/><pres", "<presence"))
	require.Equal(t, 3, PartialSuffixFold("abc<PRESENC", "<presence"))
	require.Equal(t, 2, PartialSuffixFold("/><", "<presence"))
	require.Equal(t, 0, PartialSuffixFold("<p", "<presence"))
	require.Equal(t, -1, PartialSuffixFold("<presence", "<presence"))
	require.Equal(t, -1, PartialSuffixFold("<iq/>", "<presence"))
	require.Equal(t, -1, PartialSuffixFold("", "<presence"))
}

func TestConnToIp(t *testing.T) {
	l, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	require.NotZero(t, ListenerPort(l))

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, _ := l.Accept()
		accepted <- conn
	}()
	conn, err := net.Dial("tcp4", l.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	server := <-accepted
	require.NotNil(t, server)
	defer server.Close()
	require.Equal(t, "127.0.0.1", ConnToIp(server))

	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	require.Equal(t, "<nil>", ConnToIp(a))
}

func TestTimeMethod(t *testing.T) {
	SetDebug(true)
	defer SetDebug(false)
	TimeMethod("noop")()
}

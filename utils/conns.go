package utils

import (
	"log"
	"net"
	"reflect"
)

// Extracts the IP address from a net.Conn,
// returns "<nil>" if unavailable.
func ConnToIp(conn net.Conn) string {
	switch addr := conn.RemoteAddr().(type) {
	case *net.TCPAddr:
		return addr.IP.String()
	case *net.UDPAddr:
		return addr.IP.String()
	case nil:
		return "<nil>"
	default:
		log.Printf("ConnToIp: unknown RemoteAddr type '%s'", reflect.TypeOf(addr).String())
		return "<nil>"
	}
}

// Extracts the port of a listener bound to a TCP address, 0 if unavailable.
func ListenerPort(l net.Listener) int {
	if addr, ok := l.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

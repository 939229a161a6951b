package plugins

import (
	"context"
	"crypto/tls"
	"net"
)

// Optional hook for reaching the chat server a different way.
// No implementation ships with the proxy.
// To provide one, add a file to this package:
//
//	package plugins
//
//	type myInterceptor struct{}
//
//	func (myInterceptor) Dial(ctx context.Context, network, addr string, config *tls.Config) (net.Conn, error) {
//		// chain proxies, pin a local address, etc.
//	}
//
//	func init() {
//		Interceptor = myInterceptor{}
//	}
type ProxyInterceptor interface {
	// Dials the chat server. The returned conn must already have completed its TLS handshake.
	// You should not read from or write to the socket, the server handles this already.
	Dial(ctx context.Context, network string, addr string, config *tls.Config) (net.Conn, error)
}

var (
	// Will be nil when not implemented
	Interceptor ProxyInterceptor
)

// The registered interceptor's Dial, or nil when there is none,
// ready to pass to server.ServerConfig.WithCustomDialer.
func ChatDialer() func(ctx context.Context, network string, addr string, config *tls.Config) (net.Conn, error) {
	if Interceptor == nil {
		return nil
	}
	return Interceptor.Dial
}

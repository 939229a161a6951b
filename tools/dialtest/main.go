// Checks that the chat server is reachable over TLS from this machine,
// optionally from a specific local IP.
package main

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strconv"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/bluemods/deceive-proxy/constants"
	"github.com/bluemods/deceive-proxy/crypto"
)

func main() {
	host := flag.String("host", "", "chat server host name")
	port := flag.Int("port", constants.CHAT_SERVER_PORT, "chat server port")
	localIp := flag.StringP("interface-ip", "i", "", "local IP to dial from")
	timeout := flag.Duration("timeout", constants.CHAT_DIAL_TIMEOUT_SECONDS*time.Second, "dial and read timeout")
	flag.Parse()

	if *host == "" {
		fmt.Fprintln(os.Stderr, "--host is required")
		flag.Usage()
		os.Exit(2)
	}
	if err := dialChat(*host, *port, *localIp, *timeout); err != nil {
		log.Fatal(err)
	}
}

func dialChat(host string, port int, localIp string, timeout time.Duration) error {
	dialer := &net.Dialer{Timeout: timeout}
	if localIp != "" {
		ip := net.ParseIP(localIp)
		if ip == nil {
			return fmt.Errorf("invalid IP %q", localIp)
		}
		dialer.LocalAddr = &net.TCPAddr{IP: ip}
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := tls.DialWithDialer(dialer, constants.CHAT_SERVER_TYPE, addr, crypto.ChatTLSConfig(host))
	if err != nil {
		return err
	}
	defer conn.Close()

	state := conn.ConnectionState()
	fmt.Printf("Connected to %s (%s) using %s\n", addr, conn.RemoteAddr(), tls.VersionName(state.Version))
	if len(state.PeerCertificates) > 0 {
		leaf := state.PeerCertificates[0]
		fmt.Printf("Certificate: %s, valid until %s\n", leaf.Subject.CommonName, leaf.NotAfter.Format(time.RFC3339))
	}

	conn.SetDeadline(time.Now().Add(timeout))
	open := "<?xml version='1.0'?><stream:stream to='" + host + "' version='1.0' xmlns:stream='http://etherx.jabber.org/streams'>"
	if _, err := conn.Write([]byte(open)); err != nil {
		return err
	}

	buf := make([]byte, 1024)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			fmt.Println(string(buf[:n]))
		}
		if errors.Is(err, io.EOF) {
			fmt.Println("EOF")
			return nil
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

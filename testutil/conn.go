package testutil

import (
	"fmt"
	"net"

	"github.com/autotunafish/zcash/peer"
	"github.com/renproject/phi"
)

// NewConnPair returns both ends of a loopback TCP connection, wrapped as
// message-level connections. The stop function closes both ends.
func NewConnPair(opts peer.Options) (*peer.Conn, *peer.Conn, func() error, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, nil, nil, err
	}
	defer listener.Close()

	var clientConn, serverConn net.Conn
	var clientErr, serverErr error
	phi.ParBegin(func() {
		serverConn, serverErr = listener.Accept()
	}, func() {
		clientConn, clientErr = net.Dial("tcp", listener.Addr().String())
	})

	if clientErr != nil || serverErr != nil {
		if serverConn != nil {
			serverConn.Close()
		}
		if clientConn != nil {
			clientConn.Close()
		}
		return nil, nil, nil, fmt.Errorf("client err = %v, server err = %v", clientErr, serverErr)
	}

	client, server := peer.New(clientConn, opts), peer.New(serverConn, opts)
	stop := func() error {
		serverErr := server.Close()
		clientErr := client.Close()
		if serverErr != nil {
			return serverErr
		}
		return clientErr
	}
	return client, server, stop, nil
}

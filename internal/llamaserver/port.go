package llamaserver

import "net"

// pickFreePort asks the OS for an ephemeral port and releases it immediately.
// The child process binds it right after; on a healthy host this cannot
// meaningfully fail, so failures are fatal to startup.
func pickFreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

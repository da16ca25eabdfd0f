// Package scm sends and receives small vectors of OS file descriptors
// alongside a payload byte over a connected local datagram socket, using
// SCM_RIGHTS ancillary control messages. It is the bootstrap transport the
// wheel handshake uses to hand a shared-memory descriptor and two event
// descriptors from the producer process to the consumer process, which
// share neither a virtual address space nor a file descriptor table.
package scm

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// MaxHandles is the largest number of descriptors a single call here will
// send or receive. The kernel has its own (higher) ceiling; this one keeps
// callers honest about the wheel handshake's fixed shape (at most three
// handles: the shared memory region and two event descriptors).
const MaxHandles = 16

// sentinelPayload is sent by SendHandles when the caller has no payload of
// its own: some kernels refuse a zero-length datagram that carries
// ancillary data, so every send here carries at least one byte.
const sentinelPayload = '?'

// SendHandlesWithPayload sends one datagram on sock whose payload is
// payload and whose ancillary control message carries handles. payload
// must be at least one byte. It returns the number of payload bytes sent.
func SendHandlesWithPayload(sock int, handles []int, payload []byte) (int, error) {
	if len(handles) > MaxHandles {
		return 0, fmt.Errorf("scm: %d handles exceeds the maximum of %d", len(handles), MaxHandles)
	}
	if len(payload) == 0 {
		return 0, fmt.Errorf("scm: payload must be at least one byte")
	}

	rights := unix.UnixRights(handles...)
	for {
		err := unix.Sendmsg(sock, payload, rights, nil, 0)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("scm: sendmsg: %w", err)
		}
		return len(payload), nil
	}
}

// SendHandles sends handles with a single-byte sentinel payload.
func SendHandles(sock int, handles []int) error {
	_, err := SendHandlesWithPayload(sock, handles, []byte{sentinelPayload})
	return err
}

// SendHandle sends a single handle with a sentinel payload.
func SendHandle(sock int, handle int) error {
	return SendHandles(sock, []int{handle})
}

// RecvHandlesWithPayload receives one datagram on sock. On success it
// writes up to len(outHandles) received descriptors into outHandles,
// returns how many of them were actually received, how many payload bytes
// landed in payload, and a nil error.
//
// If the control message is absent or not an SOL_SOCKET/SCM_RIGHTS message,
// the received-handle count is zero but the call still succeeds -- the
// payload may still be meaningful, so callers must check both results, not
// just the error.
//
// If the peer sent more handles than len(outHandles), the extras are
// closed silently.
func RecvHandlesWithPayload(sock int, outHandles []int, payload []byte) (n int, payloadN int, err error) {
	oob := make([]byte, unix.CmsgSpace(4*MaxHandles))

	var payloadN_, oobN int
	for {
		payloadN_, oobN, _, _, err = unix.Recvmsg(sock, payload, oob, 0)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, 0, fmt.Errorf("scm: recvmsg: %w", err)
		}
		break
	}

	cmsgs, err := unix.ParseSocketControlMessage(oob[:oobN])
	if err != nil {
		return 0, payloadN_, fmt.Errorf("scm: parse control message: %w", err)
	}

	var fds []int
	for _, cmsg := range cmsgs {
		if cmsg.Header.Level != unix.SOL_SOCKET || cmsg.Header.Type != unix.SCM_RIGHTS {
			continue
		}
		parsed, err := unix.ParseUnixRights(&cmsg)
		if err != nil {
			return 0, payloadN_, fmt.Errorf("scm: parse rights: %w", err)
		}
		fds = append(fds, parsed...)
	}

	n = copy(outHandles, fds)
	if len(fds) > n {
		for _, extra := range fds[n:] {
			unix.Close(extra)
		}
	}

	return n, payloadN_, nil
}

// RecvHandles receives handles with no payload of interest.
func RecvHandles(sock int, outHandles []int) (n int, err error) {
	n, _, err = RecvHandlesWithPayload(sock, outHandles, make([]byte, 1))
	return n, err
}

// RecvHandle receives a single handle.
func RecvHandle(sock int) (int, error) {
	var out [1]int
	n, err := RecvHandles(sock, out[:])
	if err != nil {
		return -1, err
	}
	if n != 1 {
		return -1, fmt.Errorf("scm: expected 1 handle, got %d", n)
	}
	return out[0], nil
}

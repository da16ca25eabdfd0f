package wheel

import (
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/sqwishy/memorywheel/common/go/logging"
	"github.com/sqwishy/memorywheel/wheel/scm"
)

// memName is the name given to the anonymous memory file backing a wheel's
// shared region; the file is created without seals. The name is cosmetic: memfd_create names show up in
// /proc/<pid>/fd for debugging but do not collide across processes.
const memName = "memorywheel"

// Handshake is the producer side of bootstrap: create the shared region,
// install an eventfd-layer header into it, create the two event
// descriptors, and send all three handles to the peer connected on sock in
// a single datagram. On success it returns a ready-to-use EventfdWheel; the
// local memory file descriptor is closed before returning since the
// mapping keeps the region alive on its own.
func Handshake(sock int, cfg Config) (*EventfdWheel, error) {
	return handshake(sock, cfg, logging.Nop())
}

// HandshakeLogged is Handshake with diagnostics sent to log.
func HandshakeLogged(sock int, cfg Config, log *zap.SugaredLogger) (*EventfdWheel, error) {
	return handshake(sock, cfg, logging.OrNop(log))
}

func handshake(sock int, cfg Config, log *zap.SugaredLogger) (wh *EventfdWheel, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, &InitError{Op: "wheel.Handshake", Err: err}
	}
	size := int64(cfg.Size.Bytes())

	memFD, err := unix.MemfdCreate(memName, unix.MFD_CLOEXEC)
	if err != nil {
		return nil, &InitError{Op: "wheel.Handshake", Err: fmt.Errorf("memfd_create: %w", err)}
	}
	// Collect handles we've acquired so a failure path can close exactly
	// the ones that exist, per spec.md section 7: cleanup of partially
	// acquired handles on the init path is the initializer's job.
	acquired := []int{memFD}
	defer func() {
		if err != nil {
			var cerr error
			for _, fd := range acquired {
				cerr = multierr.Append(cerr, unix.Close(fd))
			}
			if cerr != nil {
				log.Warnw("wheel handshake cleanup failed to close a handle", "error", cerr)
			}
		}
	}()

	if err = unix.Ftruncate(memFD, size); err != nil {
		return nil, &InitError{Op: "wheel.Handshake", Err: fmt.Errorf("ftruncate: %w", err)}
	}

	buf, err := unix.Mmap(memFD, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, &InitError{Op: "wheel.Handshake", Err: fmt.Errorf("mmap: %w", err)}
	}

	wh, err = NewEventfd(buf)
	if err != nil {
		unix.Munmap(buf)
		return nil, err
	}
	readableFD, writableFD := wh.FDs()
	acquired = append(acquired, readableFD, writableFD)

	if err = scm.SendHandles(sock, []int{memFD, readableFD, writableFD}); err != nil {
		unix.Munmap(buf)
		return nil, &InitError{Op: "wheel.Handshake", Err: err}
	}

	log.Debugw("wheel handshake sent handles", "memfd", memFD, "readable_fd", readableFD, "writable_fd", writableFD, "size", cfg.Size)

	if cerr := unix.Close(memFD); cerr != nil {
		log.Warnw("closing local memfd after handshake", "error", cerr)
	}

	return wh, nil
}

// Accept is the consumer side of bootstrap: receive the three handles sent
// by Handshake, map the shared region (sized by statting the received
// memory handle, not by any size the caller guesses), and wrap it with the
// received event descriptors. The handshake fails if anything other than
// exactly three handles arrives.
func Accept(sock int) (*EventfdWheel, error) {
	return accept(sock, logging.Nop())
}

// AcceptLogged is Accept with diagnostics sent to log.
func AcceptLogged(sock int, log *zap.SugaredLogger) (*EventfdWheel, error) {
	return accept(sock, logging.OrNop(log))
}

func accept(sock int, log *zap.SugaredLogger) (*EventfdWheel, error) {
	var handles [scm.MaxHandles]int
	n, err := scm.RecvHandles(sock, handles[:])
	if err != nil {
		return nil, &InitError{Op: "wheel.Accept", Err: err}
	}
	if n != 3 {
		for _, fd := range handles[:n] {
			unix.Close(fd)
		}
		return nil, initErrorf("wheel.Accept", "expected 3 handles (memory, readable, writable), got %d", n)
	}
	memFD, readableFD, writableFD := handles[0], handles[1], handles[2]

	var st unix.Stat_t
	if err := unix.Fstat(memFD, &st); err != nil {
		cerr := multierr.Combine(unix.Close(memFD), unix.Close(readableFD), unix.Close(writableFD))
		return nil, &InitError{Op: "wheel.Accept", Err: multierr.Append(fmt.Errorf("fstat: %w", err), cerr)}
	}

	buf, err := unix.Mmap(memFD, 0, int(st.Size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		cerr := multierr.Combine(unix.Close(memFD), unix.Close(readableFD), unix.Close(writableFD))
		return nil, &InitError{Op: "wheel.Accept", Err: multierr.Append(fmt.Errorf("mmap: %w", err), cerr)}
	}

	if cerr := unix.Close(memFD); cerr != nil {
		log.Warnw("closing local memfd after accept", "error", cerr)
	}

	wh, err := OpenEventfd(buf, readableFD, writableFD)
	if err != nil {
		unix.Munmap(buf)
		unix.Close(readableFD)
		unix.Close(writableFD)
		return nil, err
	}

	log.Debugw("wheel accepted handles", "readable_fd", readableFD, "writable_fd", writableFD, "size", st.Size)
	return wh, nil
}

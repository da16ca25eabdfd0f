package scm

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func socketpair(t *testing.T) (a, b int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func tempFD(t *testing.T) int {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "scm-handle")
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return int(f.Fd())
}

func TestSendRecvSingleHandle(t *testing.T) {
	a, b := socketpair(t)
	fd := tempFD(t)

	require.NoError(t, SendHandle(a, fd))

	got, err := RecvHandle(b)
	require.NoError(t, err)
	defer unix.Close(got)

	var st1, st2 unix.Stat_t
	require.NoError(t, unix.Fstat(fd, &st1))
	require.NoError(t, unix.Fstat(got, &st2))
	assert.Equal(t, st1.Ino, st2.Ino, "received descriptor refers to the same file")
}

func TestSendRecvMultipleHandles(t *testing.T) {
	a, b := socketpair(t)
	fds := []int{tempFD(t), tempFD(t), tempFD(t)}

	require.NoError(t, SendHandles(a, fds))

	out := make([]int, len(fds))
	n, err := RecvHandles(b, out)
	require.NoError(t, err)
	require.Equal(t, len(fds), n)
	for _, fd := range out {
		unix.Close(fd)
	}
}

func TestRecvHandlesTruncatesAndClosesExtras(t *testing.T) {
	a, b := socketpair(t)
	fds := []int{tempFD(t), tempFD(t), tempFD(t)}

	require.NoError(t, SendHandles(a, fds))

	out := make([]int, 1)
	n, err := RecvHandles(b, out)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	unix.Close(out[0])
}

func TestSendHandlesWithPayloadRejectsEmptyPayload(t *testing.T) {
	a, _ := socketpair(t)
	_, err := SendHandlesWithPayload(a, []int{tempFD(t)}, nil)
	assert.Error(t, err)
}

func TestSendHandlesRejectsTooManyHandles(t *testing.T) {
	a, _ := socketpair(t)
	handles := make([]int, MaxHandles+1)
	for i := range handles {
		handles[i] = tempFD(t)
	}
	err := SendHandles(a, handles)
	assert.Error(t, err)
}

func TestSendHandlesWithPayloadCarriesPayload(t *testing.T) {
	a, b := socketpair(t)
	fd := tempFD(t)

	n, err := SendHandlesWithPayload(a, []int{fd}, []byte("hi"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	out := make([]int, 1)
	payload := make([]byte, 8)
	gotN, payloadN, err := RecvHandlesWithPayload(b, out, payload)
	require.NoError(t, err)
	require.Equal(t, 1, gotN)
	assert.Equal(t, "hi", string(payload[:payloadN]))
	unix.Close(out[0])
}

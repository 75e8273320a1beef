package pidfile

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireAndRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "wsserial.pid")
	p := New(path)

	require.NoError(t, p.Acquire())
	pid, err := p.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	require.NoError(t, p.Acquire(), "reacquiring our own file succeeds")

	require.NoError(t, p.Release())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, p.Release())
}

func TestAcquireRefusesLiveOwner(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wsserial.pid")
	other := &Pidfile{path: path, pid: os.Getppid()}
	require.NoError(t, other.Acquire())

	err := New(path).Acquire()
	assert.ErrorIs(t, err, ErrRunning)

	pid, err := other.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getppid(), pid)
}

func TestAcquireRefusesFileBeingWritten(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wsserial.pid")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	err := New(path).Acquire()
	assert.ErrorIs(t, err, ErrRunning)
}

func TestAcquireReplacesDeadOwner(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wsserial.pid")
	require.NoError(t, os.WriteFile(path, []byte("-1\n"), 0644))

	p := New(path)
	require.NoError(t, p.Acquire())
	pid, err := p.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestConcurrentAcquireHasOneWinner(t *testing.T) {
	for i := 0; i < 20; i++ {
		path := filepath.Join(t.TempDir(), "wsserial.pid")
		contenders := []*Pidfile{
			{path: path, pid: os.Getpid()},
			{path: path, pid: os.Getppid()},
		}

		var (
			wg    sync.WaitGroup
			start = make(chan struct{})
			errs  = make([]error, len(contenders))
		)
		for j, p := range contenders {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				errs[j] = p.Acquire()
			}()
		}
		close(start)
		wg.Wait()

		winners := 0
		for _, err := range errs {
			if err == nil {
				winners++
			} else {
				assert.ErrorIs(t, err, ErrRunning)
			}
		}
		assert.Equal(t, 1, winners, "round %d", i)
	}
}

func TestPath(t *testing.T) {
	assert.Equal(t, "/run/wsserial.pid", New("/run/wsserial.pid").Path())
}

func TestAcquireReplacesStaleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wsserial.pid")
	require.NoError(t, os.WriteFile(path, []byte("not a pid"), 0644))

	p := New(path)
	require.NoError(t, p.Acquire())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid())+"\n", string(data))
}

func TestReleaseKeepsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wsserial.pid")
	require.NoError(t, os.WriteFile(path, []byte("1"), 0644))

	require.NoError(t, New(path).Release())
	_, err := os.Stat(path)
	assert.NoError(t, err)
}

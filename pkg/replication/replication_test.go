package replication

import (
	"path/filepath"
	"testing"

	"github.com/memkv/memkv/pkg/netutil"
	"github.com/memkv/memkv/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func listenOnEphemeralPort(t *testing.T) (fd int, port int) {
	t.Helper()
	fd, err := netutil.Server(0, "127.0.0.1")
	require.NoError(t, err)
	t.Cleanup(func() { unix.Close(fd) })
	_, port, err = netutil.LocalAddr(fd)
	require.NoError(t, err)
	return fd, port
}

func TestSyncHandshakeTransfersDump(t *testing.T) {
	serverFd, port := listenOnEphemeralPort(t)

	master := store.New(4, nil, nil)
	db := master.DBAt(0)
	db.Dict.Add("k", master.Freelist.NewString([]byte("v")))
	masterDump := filepath.Join(t.TempDir(), "master.rdb")

	masterDone := make(chan error, 1)
	go func() {
		acceptedFd, _, _, err := netutil.Accept(serverFd)
		if err != nil {
			masterDone <- err
			return
		}
		defer unix.Close(acceptedFd)
		masterDone <- HandleSync(master, acceptedFd, masterDump)
	}()

	slave := store.New(4, nil, nil)
	slaveDump := filepath.Join(t.TempDir(), "slave.rdb")
	fd, err := ConnectToMaster(slave, "127.0.0.1", port, slaveDump)
	require.NoError(t, err)
	defer unix.Close(fd)

	require.NoError(t, <-masterDone)

	slaveDB := slave.DBAt(0)
	v, ok := slaveDB.Dict.Find("k")
	require.True(t, ok)
	assert.Equal(t, "v", string(v.(interface{ Bytes() []byte }).Bytes()))
}

func TestConnectToMasterFailsWithoutListener(t *testing.T) {
	_, err := ConnectToMaster(store.New(4, nil, nil), "127.0.0.1", 1, "/tmp/doesnotmatter.rdb")
	assert.Error(t, err)
}

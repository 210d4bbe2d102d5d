package handshake

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xiubinzheng/lockstep-core/pkg/roster"
	"github.com/xiubinzheng/lockstep-core/pkg/transport"
)

func TestTwoPeerHandshake(t *testing.T) {
	log := zaptest.NewLogger(t)
	params := Params{Lag: QuantizeLag(10, 5), Updates: 5}
	require.Equal(t, int32(10), params.Lag)

	serverTransport, err := transport.NewUDPTransport(0, log)
	require.NoError(t, err)
	defer serverTransport.Close()
	clientTransport, err := transport.NewUDPTransport(0, log)
	require.NoError(t, err)
	defer clientTransport.Close()

	server, err := NewServer(serverTransport, log, params, 2)
	require.NoError(t, err)
	client, err := NewClient(clientTransport, log, params)
	require.NoError(t, err)

	type serverResult struct {
		r   roster.Roster
		err error
	}
	type clientResult struct {
		r   roster.Roster
		err error
	}
	serverCh := make(chan serverResult, 1)
	clientCh := make(chan clientResult, 1)

	humanSlots := []bool{true, true, true}
	go func() {
		r, err := server.Run(humanSlots)
		serverCh <- serverResult{r, err}
	}()

	serverAddr := "127.0.0.1:" + strconv.Itoa(int(serverTransport.LocalPort()))
	go func() {
		r, err := client.Run(serverAddr)
		clientCh <- clientResult{r, err}
	}()

	var sres serverResult
	var cres clientResult
	select {
	case sres = <-serverCh:
	case <-time.After(10 * time.Second):
		t.Fatal("server handshake timed out")
	}
	select {
	case cres = <-clientCh:
	case <-time.After(10 * time.Second):
		t.Fatal("client handshake timed out")
	}

	require.NoError(t, sres.err)
	require.NoError(t, cres.err)

	assert.Equal(t, uint8(2), sres.r.NumPlayers())
	assert.Equal(t, uint8(2), cres.r.NumPlayers())
	assert.Equal(t, uint8(0), sres.r.ThisPlayer(), "server is the first human slot")
	assert.Equal(t, uint8(1), cres.r.ThisPlayer(), "client takes the second human slot")
}

func TestQuantizeLagRoundsDownToMultiple(t *testing.T) {
	assert.Equal(t, int32(10), QuantizeLag(12, 5))
	assert.Equal(t, int32(10), QuantizeLag(10, 5))
	assert.Equal(t, int32(0), QuantizeLag(4, 5))
}

func TestAssignPlayerIndicesSkipsNonHuman(t *testing.T) {
	indices, err := assignPlayerIndices([]bool{false, true, false, true, true}, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint8{1, 3}, indices)
}

func TestAssignPlayerIndicesNotEnoughSlots(t *testing.T) {
	_, err := assignPlayerIndices([]bool{true}, 2)
	assert.ErrorIs(t, err, ErrNotEnoughSlots)
}

package cmd

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"firestige.xyz/pktcraft/internal/core"
	"firestige.xyz/pktcraft/internal/core/layer"
	"firestige.xyz/pktcraft/internal/render"
)

func udpChain(t *testing.T) layer.Layer {
	t.Helper()
	chain, err := layer.Chain(layer.NewIPv4(local, remote), layer.NewUDP(0, 0), layer.NewRaw([]byte("abc")))
	require.NoError(t, err)
	return chain
}

func TestRunShow_Text(t *testing.T) {
	var buf bytes.Buffer
	err := runShow(&buf, udpChain(t), render.New(render.FormatText, false))

	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "### IPv4 ###")
	assert.Contains(t, out, " ### UDP ###")
	assert.Contains(t, out, "total_length: 31")
	assert.Contains(t, out, "protocol: 17")
}

func TestRunShow_Hex(t *testing.T) {
	var buf bytes.Buffer
	err := runShow(&buf, udpChain(t), render.New(render.FormatHex, false))

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "00000000  45 00 00 1f")
}

func TestRunShow_SerializeError(t *testing.T) {
	chain := layer.MustChain(layer.NewIPv4(local, remote), &layer.UDP{PseudoSrc: local})
	var buf bytes.Buffer
	err := runShow(&buf, chain, render.New(render.FormatText, false))

	assert.ErrorIs(t, err, core.ErrAddressing)
}

func TestRunSend_Success(t *testing.T) {
	pio := new(MockPacketIO)
	chain := udpChain(t)
	pio.On("Transmit", chain).Return(nil)

	var buf bytes.Buffer
	err := runSend(pio, &buf, chain)

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "✓ Sent 1 packet (IPv4/UDP/Raw)")
	pio.AssertExpectations(t)
}

func TestRunSend_Error(t *testing.T) {
	pio := new(MockPacketIO)
	pio.On("Transmit", mock.Anything).Return(errors.New("operation not permitted"))

	var buf bytes.Buffer
	err := runSend(pio, &buf, udpChain(t))

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to send")
	assert.Empty(t, buf.String())
}

func TestRunSendp_RequiresInterface(t *testing.T) {
	pio := new(MockPacketIO)

	var buf bytes.Buffer
	err := runSendp(pio, &buf, udpChain(t), "")

	assert.Error(t, err)
	pio.AssertNotCalled(t, "TransmitLink", mock.Anything, mock.Anything)
}

func TestRunSendp_Success(t *testing.T) {
	pio := new(MockPacketIO)
	chain := layer.MustChain(layer.NewEthernet(layer.MAC{}, layer.BroadcastMAC), udpChain(t))
	pio.On("TransmitLink", chain, "eth0").Return(nil)

	var buf bytes.Buffer
	err := runSendp(pio, &buf, chain, "eth0")

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "on eth0 (Ethernet/IPv4/UDP/Raw)")
	pio.AssertExpectations(t)
}

func TestRunSR_Reply(t *testing.T) {
	pio := new(MockPacketIO)
	pio.On("SendAndAwaitReply", mock.Anything, 2*time.Second).Return(echoReply(t, remote, 1, 1), true, nil)

	var buf bytes.Buffer
	err := runSR(pio, &buf, udpChain(t), 2*time.Second, render.New(render.FormatText, false))

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "### Ethernet ###")
	assert.Contains(t, buf.String(), "### ICMP ###")
}

func TestRunSR_DecodeFailureStillPrinted(t *testing.T) {
	reply := echoReply(t, remote, 1, 1)
	reply.DecodeErr = core.ErrMalformed
	reply.Packet = layer.NewRaw(reply.Raw.Data)

	pio := new(MockPacketIO)
	pio.On("SendAndAwaitReply", mock.Anything, time.Second).Return(reply, true, nil)

	var buf bytes.Buffer
	err := runSR(pio, &buf, udpChain(t), time.Second, render.New(render.FormatText, false))

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "! decode:")
	assert.Contains(t, buf.String(), "### Raw ###")
}

func TestRunSR_Timeout(t *testing.T) {
	pio := new(MockPacketIO)
	pio.On("SendAndAwaitReply", mock.Anything, time.Second).Return(nil, false, nil)

	var buf bytes.Buffer
	err := runSR(pio, &buf, udpChain(t), time.Second, render.New(render.FormatText, false))

	assert.ErrorIs(t, err, core.ErrNoAnswer)
}

package ingress

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rorsat-ltd/kosmos/internal/mq"
	"github.com/rorsat-ltd/kosmos/internal/store"
	"github.com/rorsat-ltd/kosmos/internal/wire"
)

type fakeInserter struct {
	mu       sync.Mutex
	inserted []store.MOMessage
	fail     bool
}

func (f *fakeInserter) InsertMOMessage(ctx context.Context, m store.MOMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return assertErr
	}
	f.inserted = append(f.inserted, m)
	return nil
}

var assertErr = &insertError{}

type insertError struct{}

func (*insertError) Error() string { return "insert failed" }

func startServer(t *testing.T, ins moInserter, q mq.Queue, upstream net.IP) (net.Addr, func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &Server{
		cfg:   Config{UpstreamIP: upstream},
		store: ins,
		queue: q,
		log:   zerolog.Nop(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	go s.Serve(ctx, ln)

	return ln.Addr(), func() { cancel() }
}

func momHeaderBytes(t *testing.T, imei string, status wire.SessionStatus) []byte {
	t.Helper()
	b := make([]byte, 28)
	b[19] = byte(status)
	copy(b[4:19], imei)
	return b
}

func TestServer_AcceptsAdmittedPeerAndRespondsPositively(t *testing.T) {
	q := mq.NewMemoryQueue()
	defer q.Close()
	ins := &fakeInserter{}

	addr, stop := startServer(t, ins, q, net.ParseIP("127.0.0.1"))
	defer stop()

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	header := momHeaderBytes(t, "000000000000001", wire.SessionSuccessful)
	pm := wire.ProtocolMessage{Elements: []wire.Element{{ID: 0x01, Data: header}}}
	_, err = pm.WriteTo(conn)
	require.NoError(t, err)

	resp, err := wire.ReadProtocolMessage(conn)
	require.NoError(t, err)
	require.Len(t, resp.Elements, 1)
	assert.Equal(t, byte(0x01), resp.Elements[0].Data[0])

	time.Sleep(50 * time.Millisecond)
	ins.mu.Lock()
	defer ins.mu.Unlock()
	require.Len(t, ins.inserted, 1)
	assert.Equal(t, "000000000000001", ins.inserted[0].IMEI)
}

func TestServer_RejectsUnadmittedPeerWithoutReading(t *testing.T) {
	q := mq.NewMemoryQueue()
	defer q.Close()
	ins := &fakeInserter{}

	// upstream IP set to something that will never match 127.0.0.1
	addr, stop := startServer(t, ins, q, net.ParseIP("10.0.0.1"))
	defer stop()

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	buf := make([]byte, 16)
	_, err = conn.Read(buf)
	assert.Error(t, err, "expected connection to be closed without a response")
}

func TestServer_DecodeFailureRespondsNegatively(t *testing.T) {
	q := mq.NewMemoryQueue()
	defer q.Close()
	ins := &fakeInserter{}

	addr, stop := startServer(t, ins, q, net.ParseIP("127.0.0.1"))
	defer stop()

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	// unknown IE only, no mandatory header -> decode succeeds at frame
	// level but ParseMOMessage fails.
	pm := wire.ProtocolMessage{Elements: []wire.Element{{ID: 0x7F, Data: []byte{1, 2, 3}}}}
	_, err = pm.WriteTo(conn)
	require.NoError(t, err)

	resp, err := wire.ReadProtocolMessage(conn)
	require.NoError(t, err)
	require.Len(t, resp.Elements, 1)
	assert.Equal(t, byte(0x00), resp.Elements[0].Data[0])
}

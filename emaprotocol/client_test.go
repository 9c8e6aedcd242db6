package emaprotocol

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipeDialer hands out in-memory connections and runs serve on the
// controller end of each one. Every Write on the controller end arrives as
// a separate Read on the client end, giving exact control over chunking.
type pipeDialer struct {
	serve func(conn net.Conn)

	mu        sync.Mutex
	addresses []string
}

func (d *pipeDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	d.mu.Lock()
	d.addresses = append(d.addresses, address)
	d.mu.Unlock()

	client, server := net.Pipe()
	go func() {
		defer server.Close()
		d.serve(server)
	}()
	return client, nil
}

func (d *pipeDialer) dialed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.addresses...)
}

// readFrame reads from conn until a frame delimiter arrives.
func readFrame(conn net.Conn) (string, error) {
	var frame bytes.Buffer
	buf := make([]byte, 64)
	for !bytes.Contains(frame.Bytes(), []byte(Delimiter)) {
		n, err := conn.Read(buf)
		frame.Write(buf[:n])
		if err != nil {
			return frame.String(), err
		}
	}
	return frame.String(), nil
}

// replyWith returns a controller that answers one request with the given
// chunks, written separately, and then waits for the client to hang up.
func replyWith(chunks ...string) func(net.Conn) {
	return func(conn net.Conn) {
		if _, err := readFrame(conn); err != nil {
			return
		}
		for _, c := range chunks {
			if _, err := conn.Write([]byte(c)); err != nil {
				return
			}
		}
		io.Copy(io.Discard, conn)
	}
}

func newPipeClient(serve func(net.Conn), opts ...Option) (*Client, *pipeDialer) {
	d := &pipeDialer{serve: serve}
	opts = append([]Option{WithDialer(d)}, opts...)
	return NewClient(Peer{Host: "robot", Port: 10000}, opts...), d
}

func TestSendRequestSingleChunk(t *testing.T) {
	client, dialer := newPipeClient(replyWith("getSAM:#X1.432#Y2.643#Z-0.53;"))

	reply, err := client.SendRequest(context.Background(), []byte("getSAM;"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "getSAM:#X1.432#Y2.643#Z-0.53;", reply)
	assert.Equal(t, []string{"robot:10000"}, dialer.dialed())
	assert.False(t, client.IsConnected())
}

func TestSendRequestReassemblesChunks(t *testing.T) {
	single, _ := newPipeClient(replyWith("getSAM:#X1.432#Y2.643#Z-0.53;"))
	chunked, _ := newPipeClient(replyWith("getSAM:#X1.432", "#Y2.643", "#Z-0.53;"))

	want, err := single.SendRequest(context.Background(), []byte("getSAM;"), time.Second)
	require.NoError(t, err)
	got, err := chunked.SendRequest(context.Background(), []byte("getSAM;"), time.Second)
	require.NoError(t, err)

	assert.Equal(t, want, got)
}

func TestSendRequestStripsNulPadding(t *testing.T) {
	client, _ := newPipeClient(replyWith("\x00\x00setCoords:", "done;\x00\x00\x00\x00"))

	reply, err := client.Send(context.Background(), "setCoords")
	require.NoError(t, err)
	assert.Equal(t, "setCoords:done;", reply)
}

func TestSendFramesCommand(t *testing.T) {
	received := make(chan string, 1)
	client, _ := newPipeClient(func(conn net.Conn) {
		frame, err := readFrame(conn)
		if err != nil {
			return
		}
		received <- frame
		conn.Write([]byte("powerOn:done;"))
		io.Copy(io.Discard, conn)
	})

	_, err := client.Send(context.Background(), "powerOn")
	require.NoError(t, err)
	assert.Equal(t, "powerOn;", <-received)
}

func TestSendRequestReceiveTimeoutDiscardsPartialReply(t *testing.T) {
	client, _ := newPipeClient(replyWith("getSAM:#X1.432"))

	start := time.Now()
	reply, err := client.SendRequest(context.Background(), []byte("getSAM;"), 50*time.Millisecond)
	require.Error(t, err)
	assert.Empty(t, reply)
	assert.Less(t, time.Since(start), 2*time.Second)

	assert.True(t, errors.Is(err, ErrTimeout))
	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, OpReceive, timeoutErr.Op)
	assert.Equal(t, 50*time.Millisecond, timeoutErr.Limit)
	assert.Contains(t, err.Error(), "no message delimiter received")
	assert.False(t, client.IsConnected())
}

func TestSendRequestSendTimeout(t *testing.T) {
	// The controller never reads, so the write blocks.
	client, _ := newPipeClient(func(conn net.Conn) {
		time.Sleep(500 * time.Millisecond)
	})

	_, err := client.SendRequest(context.Background(), []byte("powerOn;"), 50*time.Millisecond)
	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, OpSend, timeoutErr.Op)
	assert.Contains(t, err.Error(), "not sent")
}

func TestSendRequestDelimiterAcrossTwoFramesKeepsReading(t *testing.T) {
	// A chunk carrying two delimiters is not a single reply.
	client, _ := newPipeClient(replyWith("a:done;b:done;"))

	_, err := client.SendRequest(context.Background(), []byte("a;"), 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestSendRequestPeerClosed(t *testing.T) {
	client, _ := newPipeClient(func(conn net.Conn) {
		readFrame(conn)
		conn.Write([]byte("getSAM:#X1"))
	})

	_, err := client.SendRequest(context.Background(), []byte("getSAM;"), time.Second)
	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.ErrorIs(t, err, io.EOF)
	assert.ErrorIs(t, err, ErrConnection)
}

func TestSendRequestContextCancel(t *testing.T) {
	client, _ := newPipeClient(replyWith())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := client.SendRequest(ctx, []byte("moveGate;"), 5*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

// cancelOnWrite cancels the exchange as soon as the request is written,
// before the client arms its read deadline.
type cancelOnWrite struct {
	net.Conn
	cancel context.CancelFunc
}

func (c *cancelOnWrite) Write(p []byte) (int, error) {
	n, err := c.Conn.Write(p)
	c.cancel()
	return n, err
}

type cancellingDialer struct {
	*pipeDialer
	cancel context.CancelFunc
}

func (d *cancellingDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	conn, err := d.pipeDialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	return &cancelOnWrite{Conn: conn, cancel: d.cancel}, nil
}

func TestSendRequestCancelBetweenWriteAndRead(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dialer := &cancellingDialer{pipeDialer: &pipeDialer{serve: replyWith()}, cancel: cancel}
	client := NewClient(Peer{Host: "robot", Port: 10000}, WithDialer(dialer))

	start := time.Now()
	_, err := client.SendRequest(ctx, []byte("moveGate;"), 5*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSendRequestHonoursContextDeadline(t *testing.T) {
	client, _ := newPipeClient(replyWith())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.SendRequest(ctx, []byte("moveGate;"), 5*time.Second)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestMissingPeer(t *testing.T) {
	tests := []struct {
		name string
		peer Peer
	}{
		{"NoHostNoPort", Peer{}},
		{"NoPort", Peer{Host: "robot"}},
		{"NoHost", Peer{Port: 10000}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dialer := &pipeDialer{serve: replyWith("x:done;")}
			client := NewClient(tt.peer, WithDialer(dialer))

			_, err := client.Send(context.Background(), "x")
			assert.ErrorIs(t, err, ErrConfiguration)
			var cfgErr *ConfigurationError
			assert.ErrorAs(t, err, &cfgErr)
			assert.Empty(t, dialer.dialed())
		})
	}
}

type staticResolver struct {
	peer  Peer
	err   error
	calls int
}

func (r *staticResolver) ResolvePeer() (Peer, error) {
	r.calls++
	return r.peer, r.err
}

func TestResolverFillsMissingFields(t *testing.T) {
	resolver := &staticResolver{peer: Peer{Host: "config-host", Port: 1234}}
	dialer := &pipeDialer{serve: replyWith("x:done;")}
	client := NewClient(Peer{Host: "explicit-host"}, WithDialer(dialer), WithResolver(resolver))

	_, err := client.Send(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []string{"explicit-host:1234"}, dialer.dialed())
	assert.Equal(t, Peer{Host: "explicit-host", Port: 1234}, client.Peer())

	// The resolved peer is kept.
	_, err = client.Send(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, 1, resolver.calls)
}

func TestResolverErrors(t *testing.T) {
	t.Run("Incomplete", func(t *testing.T) {
		client := NewClient(Peer{}, WithResolver(&staticResolver{peer: Peer{Host: "robot"}}))
		err := client.Connect(context.Background())
		assert.ErrorIs(t, err, ErrConfiguration)
	})

	t.Run("Failure", func(t *testing.T) {
		cause := errors.New("no such file")
		client := NewClient(Peer{}, WithResolver(&staticResolver{err: cause}))
		err := client.Connect(context.Background())
		assert.ErrorIs(t, err, ErrConfiguration)
		assert.ErrorIs(t, err, cause)
	})
}

type recordingObserver struct {
	mu       sync.Mutex
	commands []string
	errs     []error
}

func (o *recordingObserver) ObserveExchange(command string, elapsed time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.commands = append(o.commands, command)
	o.errs = append(o.errs, err)
}

func TestObserver(t *testing.T) {
	observer := &recordingObserver{}
	client, _ := newPipeClient(replyWith("setSamPosOffset:done;"), WithObserver(observer))

	_, err := client.Send(context.Background(), "setSamPosOffset:#X0#Y0")
	require.NoError(t, err)

	assert.Equal(t, []string{"setSamPosOffset"}, observer.commands)
	assert.Equal(t, []error{nil}, observer.errs)
}

// startLoopbackController listens on a loopback port and answers every
// request with reply after delay. It records the highest number of requests
// that were being handled at the same time.
func startLoopbackController(t *testing.T, delay time.Duration, reply string) (Peer, *atomic.Int32) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var wg sync.WaitGroup
	var active, peak atomic.Int32
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer conn.Close()
				if _, err := readFrame(conn); err != nil {
					return
				}
				n := active.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(delay)
				active.Add(-1)
				conn.Write([]byte(reply))
				io.Copy(io.Discard, conn)
			}()
		}
	}()
	t.Cleanup(func() {
		listener.Close()
		wg.Wait()
	})

	addr := listener.Addr().(*net.TCPAddr)
	return Peer{Host: "127.0.0.1", Port: addr.Port}, &peak
}

func TestExchangesAreSerialised(t *testing.T) {
	peer, peak := startLoopbackController(t, 10*time.Millisecond, "getSpeed:#S50;")
	client := NewClient(peer, WithTimeout(5*time.Second))

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reply, err := client.Send(context.Background(), "getSpeed")
			if err == nil && reply != "getSpeed:#S50;" {
				err = errors.New("unexpected reply " + reply)
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), peak.Load())
}

func TestConnectIsIdempotent(t *testing.T) {
	peer, _ := startLoopbackController(t, 0, "x:done;")
	client := NewClient(peer)

	require.NoError(t, client.Connect(context.Background()))
	assert.True(t, client.IsConnected())
	require.NoError(t, client.Connect(context.Background()))
	assert.True(t, client.IsConnected())

	client.Disconnect()
	assert.False(t, client.IsConnected())
	client.Disconnect()
	assert.False(t, client.IsConnected())
}

func TestConnectRefused(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()

	client := NewClient(Peer{Host: "127.0.0.1", Port: port})
	_, err = client.Send(context.Background(), "powerOn")
	var connErr *ConnectionError
	assert.ErrorAs(t, err, &connErr)
}

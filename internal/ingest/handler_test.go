package ingest

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/m-lab/go/rtx"
	"github.com/quic-go/quic-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buoylink/buoylink/internal/netx"
	"github.com/buoylink/buoylink/internal/notify"
	"github.com/buoylink/buoylink/internal/persistence"
	"github.com/buoylink/buoylink/internal/testutil"
	"github.com/buoylink/buoylink/pkg/buoy1"
	"github.com/buoylink/buoylink/pkg/buoy1/model"
	"github.com/buoylink/buoylink/pkg/buoy1/spec"
	"github.com/buoylink/buoylink/pkg/client"
)

// fakeCodec copies its input and reports a fixed number of errors. It also
// records whether the metadata file already existed when it ran.
type fakeCodec struct {
	store  *persistence.Store
	errors int
	fail   error

	mu             sync.Mutex
	metadataBefore bool
}

func (c *fakeCodec) Decode(_ context.Context, in, out string) (int, error) {
	if c.fail != nil {
		return 0, c.fail
	}
	c.checkMetadata(in)
	b, err := os.ReadFile(in)
	if err != nil {
		return 0, err
	}
	return c.errors, os.WriteFile(out, b, 0600)
}

func (c *fakeCodec) Render(_ context.Context, in, out string) error {
	c.checkMetadata(in)
	return os.WriteFile(out, []byte("png"), 0600)
}

func (c *fakeCodec) checkMetadata(in string) {
	base := strings.TrimSuffix(in, filepath.Ext(in))
	if _, err := os.Stat(base + "." + persistence.ExtMetadata); err == nil {
		c.mu.Lock()
		c.metadataBefore = true
		c.mu.Unlock()
	}
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []*notify.Notice
}

func (n *recordingNotifier) Notify(_ context.Context, notice *notify.Notice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	return nil
}

type testEnv struct {
	cert     *testutil.Cert
	store    *persistence.Store
	handler  *Handler
	codec    *fakeCodec
	notifier *recordingNotifier
	addr     string
}

func setup(t *testing.T, opts ...func(*Handler, *fakeCodec)) *testEnv {
	t.Helper()
	cert := testutil.NewCert(t)
	store, err := persistence.New(t.TempDir())
	rtx.Must(err, "cannot create store")

	fc := &fakeCodec{store: store, errors: 3}
	nt := &recordingNotifier{}
	h := New(store, time.Minute)
	h.Decoder = fc
	h.Renderer = fc
	h.Notifier = nt
	h.Now = func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC) }
	for _, opt := range opts {
		opt(h, fc)
	}

	ln, err := netx.Listen("127.0.0.1:0", cert.TLS, spec.MaxStreamSize)
	rtx.Must(err, "cannot listen")
	ctx, cancel := context.WithCancel(context.Background())
	srv := &Server{Listener: ln, Handler: h}
	go srv.Serve(ctx)
	t.Cleanup(func() {
		cancel()
		ln.Close()
		h.Close()
	})
	return &testEnv{
		cert:     cert,
		store:    store,
		handler:  h,
		codec:    fc,
		notifier: nt,
		addr:     ln.Addr().String(),
	}
}

func (e *testEnv) upload(t *testing.T, data model.BuoyData) model.Command {
	t.Helper()
	c, err := client.New(client.Config{
		Server:  "https://" + e.addr,
		CAFile:  e.cert.CAFile,
		Version: "test",
	})
	require.NoError(t, err)
	cmd, err := c.Upload(context.Background(), data)
	require.NoError(t, err)
	e.handler.Wait()
	return cmd
}

// rawRequest sends msg on a new stream and returns the server's response.
func (e *testEnv) rawRequest(t *testing.T, msg []byte) string {
	t.Helper()
	pem, err := os.ReadFile(e.cert.CAFile)
	rtx.Must(err, "cannot read CA")
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(pem)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := quic.DialAddr(ctx, e.addr, &tls.Config{
		RootCAs:    pool,
		ServerName: "127.0.0.1",
		NextProtos: spec.NextProtos,
	}, nil)
	require.NoError(t, err)
	defer conn.CloseWithError(0, "done")
	st, err := conn.OpenStreamSync(ctx)
	require.NoError(t, err)
	_, err = st.Write(msg)
	require.NoError(t, err)
	require.NoError(t, st.Close())
	resp, err := io.ReadAll(st)
	require.NoError(t, err)
	e.handler.Wait()
	return string(resp)
}

func payload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

func buoyData(n int, startTime string) model.BuoyData {
	return model.BuoyData{
		ID:            "1a2b",
		Hydrophone:    payload(n),
		Voltage:       12.25,
		DroppedBlocks: 0,
		GPS:           "$GPGGA,123519,4807.038,N",
		StartTime:     startTime,
		Uptime:        3600,
	}
}

func (e *testEnv) exists(id, ts, ext string) bool {
	_, err := os.Stat(e.store.Path(id, ts, ext))
	return err == nil
}

func (e *testEnv) metadata(t *testing.T, id, ts string) map[string]string {
	t.Helper()
	b, err := os.ReadFile(e.store.Path(id, ts, persistence.ExtMetadata))
	require.NoError(t, err)
	var md map[string]string
	require.NoError(t, json.Unmarshal(b, &md))
	return md
}

func TestIngest_LargePayload(t *testing.T) {
	e := setup(t)
	ts := "20240101T101010.123Z"
	data := buoyData(2050, ts)

	cmd := e.upload(t, data)
	assert.Equal(t, model.Normal(), cmd)

	for _, ext := range []string{"bin", "wav", "png", "json"} {
		assert.True(t, e.exists("1a2b", ts, ext), "missing .%s", ext)
	}
	raw, err := os.ReadFile(e.store.Path("1a2b", ts, "bin"))
	require.NoError(t, err)
	assert.Equal(t, data.Hydrophone, raw)

	md := e.metadata(t, "1a2b", ts)
	assert.Equal(t, "3", md["decode_errors"])
	assert.Equal(t, "1a2b", md["buoy_id"])
	assert.Equal(t, "/id/1a2b", md["Host"])
	assert.Equal(t, "12.25", md["Battery-Voltage"])
	assert.Equal(t, data.GPS, md["GPS"])
	assert.Equal(t, ts, md["Start-Time"])
	assert.Equal(t, "3600", md["Uptime"])
	assert.Equal(t, "test", md["sw-version"])
	assert.Equal(t, "2050", md["length"])

	assert.False(t, e.codec.metadataBefore, "metadata written before derived artifacts")
	bin, err := os.Stat(e.store.Path("1a2b", ts, "bin"))
	require.NoError(t, err)
	js, err := os.Stat(e.store.Path("1a2b", ts, "json"))
	require.NoError(t, err)
	assert.True(t, bin.ModTime().Before(js.ModTime()), "bin %v, json %v", bin.ModTime(), js.ModTime())

	require.Len(t, e.notifier.notices, 1)
	assert.Len(t, e.notifier.notices[0].Files, 4)
	assert.Equal(t, 3, e.notifier.notices[0].DecodeErrors)
	assert.NotEmpty(t, e.notifier.notices[0].UUID)
}

func TestIngest_SmallPayload(t *testing.T) {
	e := setup(t)
	ts := "20240101T101010.123Z"

	e.upload(t, buoyData(500, ts))

	assert.True(t, e.exists("1a2b", ts, "bin"))
	assert.True(t, e.exists("1a2b", ts, "json"))
	assert.False(t, e.exists("1a2b", ts, "wav"))
	assert.False(t, e.exists("1a2b", ts, "png"))
	assert.Equal(t, "0", e.metadata(t, "1a2b", ts)["decode_errors"])
}

func TestIngest_Heartbeat(t *testing.T) {
	e := setup(t)
	ts := "20240101T101010.123Z"

	e.upload(t, buoyData(0, ts))

	raw, err := os.ReadFile(e.store.Path("1a2b", ts, "bin"))
	require.NoError(t, err)
	assert.Empty(t, raw)
	assert.Equal(t, "0", e.metadata(t, "1a2b", ts)["length"])
}

func TestIngest_EpochStartTime(t *testing.T) {
	e := setup(t)

	e.upload(t, buoyData(10, "19700101T000012.000Z"))

	assert.True(t, e.exists("1a2b", "20240506T070809.000Z", "json"))
	assert.False(t, e.exists("1a2b", "19700101T000012.000Z", "bin"))
}

func TestIngest_NoDecoder(t *testing.T) {
	e := setup(t, func(h *Handler, _ *fakeCodec) { h.Decoder = nil })
	ts := "20240101T101010.123Z"

	e.upload(t, buoyData(4096, ts))

	assert.True(t, e.exists("1a2b", ts, "bin"))
	assert.False(t, e.exists("1a2b", ts, "wav"))
	assert.Equal(t, "0", e.metadata(t, "1a2b", ts)["decode_errors"])
}

func TestIngest_DecodeFailure(t *testing.T) {
	e := setup(t, func(_ *Handler, c *fakeCodec) { c.fail = errors.New("corrupt") })
	ts := "20240101T101010.123Z"

	e.upload(t, buoyData(4096, ts))

	assert.True(t, e.exists("1a2b", ts, "bin"))
	assert.False(t, e.exists("1a2b", ts, "wav"))
	assert.False(t, e.exists("1a2b", ts, "json"), "metadata must signal completion only")
	assert.Empty(t, e.notifier.notices)
}

func TestIngest_Rejections(t *testing.T) {
	e := setup(t)
	valid := string(buoy1.BuildUpload(buoyData(10, "20240101T101010.123Z"), "test"))

	tests := []struct {
		name string
		msg  string
		want string
	}{
		{
			name: "missing boundary",
			msg:  strings.TrimSuffix(valid, spec.EndBoundary),
			want: "failed to process request: " + buoy1.ErrMissingBoundary.Error() + "\n",
		},
		{
			name: "not implemented",
			msg:  "GET /id/1 HTTP/1.1\r\n\r\n",
			want: spec.ResponseNotImplemented,
		},
		{
			name: "bad path",
			msg:  strings.Replace(valid, "POST /id/1a2b", "POST /other/1", 1),
			want: "failed to process request: invalid path",
		},
		{
			name: "id too long",
			msg:  strings.Replace(valid, "POST /id/1a2b", "POST /id/"+strings.Repeat("a", 41), 1),
			want: "failed to process request: invalid path",
		},
		{
			name: "incomplete",
			msg:  "POST /id/1 HTTP/1.1\r\nHost: x",
			want: "failed to process request: " + buoy1.ErrIncompleteRequest.Error() + "\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.rawRequest(t, []byte(tt.msg))
			assert.True(t, strings.HasPrefix(got, tt.want), "got %q, want prefix %q", got, tt.want)
		})
	}

	entries, err := os.ReadDir(e.store.Dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "rejected requests must not write files")
}

func TestIngest_ConcurrentStreams(t *testing.T) {
	e := setup(t)
	c, err := client.New(client.Config{Server: "https://" + e.addr, CAFile: e.cert.CAFile})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := c.Upload(context.Background(), buoyData(100, fmt.Sprintf("20240101T10101%d.000Z", i)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	e.handler.Wait()
	for i := 0; i < 5; i++ {
		assert.True(t, e.exists("1a2b", fmt.Sprintf("20240101T10101%d.000Z", i), "json"))
	}
}

func TestHandler_checkCollision(t *testing.T) {
	store, err := persistence.New(t.TempDir())
	rtx.Must(err, "cannot create store")
	h := New(store, time.Minute)
	defer h.Close()

	u := &Upload{BuoyID: "1", Timestamp: "ts"}
	h.checkCollision(u)
	assert.NotNil(t, h.recent.Get("1/ts"))
	h.checkCollision(u)
	assert.Equal(t, 1, h.recent.Len())
}

// fakeStream serves a fixed request and records the response.
type fakeStream struct {
	r          io.Reader
	written    []byte
	readCancel bool
	closed     bool
}

func (s *fakeStream) Read(p []byte) (int, error) { return s.r.Read(p) }

func (s *fakeStream) Write(p []byte) (int, error) {
	s.written = append(s.written, p...)
	return len(p), nil
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

func (s *fakeStream) CancelRead(quic.StreamErrorCode) { s.readCancel = true }

// zeros is an endless reader of zero bytes.
type zeros struct{}

func (zeros) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

func TestHandler_HandleStream_TooLarge(t *testing.T) {
	store, err := persistence.New(t.TempDir())
	rtx.Must(err, "cannot create store")
	h := New(store, time.Minute)
	defer h.Close()

	header := "POST /id/1 HTTP/1.1\r\nHost: /id/1\r\n\r\n"
	st := &fakeStream{
		r: io.MultiReader(strings.NewReader(header),
			io.LimitReader(zeros{}, spec.MaxStreamSize)),
	}
	h.HandleStream(context.Background(), st)
	h.Wait()

	assert.Equal(t, "failed to process request: "+ErrStreamTooLarge.Error()+"\n", string(st.written))
	assert.True(t, st.readCancel, "read side must be canceled")
	assert.True(t, st.closed)
	entries, err := os.ReadDir(store.Dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestHandler_HandleStream_AtLimit(t *testing.T) {
	store, err := persistence.New(t.TempDir())
	rtx.Must(err, "cannot create store")
	h := New(store, time.Minute)
	h.Now = func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC) }
	defer h.Close()

	header := "POST /id/1 HTTP/1.1\r\nHost: /id/1\r\n\r\n"
	size := spec.MaxStreamSize - len(header) - len(spec.EndBoundary)
	st := &fakeStream{
		r: io.MultiReader(strings.NewReader(header),
			io.LimitReader(zeros{}, int64(size)),
			strings.NewReader(spec.EndBoundary)),
	}
	h.HandleStream(context.Background(), st)
	h.Wait()

	assert.Equal(t, spec.ResponseOK, string(st.written))
	assert.False(t, st.readCancel)
	fi, err := os.Stat(store.Path("1", "20240506T070809.000Z", persistence.ExtRaw))
	require.NoError(t, err)
	assert.Equal(t, int64(size), fi.Size())
}

// Package ingest implements the server side of the buoy1 upload protocol:
// it accepts QUIC sessions, parses each stream as one upload and persists
// the upload's artifacts.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
	"github.com/quic-go/quic-go"

	"github.com/buoylink/buoylink/internal/codec"
	"github.com/buoylink/buoylink/internal/metrics"
	"github.com/buoylink/buoylink/internal/notify"
	"github.com/buoylink/buoylink/internal/persistence"
	"github.com/buoylink/buoylink/pkg/buoy1"
	"github.com/buoylink/buoylink/pkg/buoy1/model"
	"github.com/buoylink/buoylink/pkg/buoy1/spec"
)

// DefaultCollisionWindow is how long a (buoy id, timestamp) pair is
// remembered for collision detection.
const DefaultCollisionWindow = time.Hour

// ErrStreamTooLarge is returned when a stream exceeds spec.MaxStreamSize.
var ErrStreamTooLarge = errors.New("stream too large")

// Stream is the subset of quic.Stream used by the Handler.
type Stream interface {
	io.Reader
	io.Writer
	Close() error
	CancelRead(quic.StreamErrorCode)
}

// Notifier is told about every upload whose artifacts are complete.
type Notifier interface {
	Notify(ctx context.Context, n *notify.Notice) error
}

// Handler processes uploads.
type Handler struct {
	Store *persistence.Store
	// Decoder and Renderer derive the waveform and the spectrogram. If
	// Decoder is nil no derived artifacts are produced. If only Renderer is
	// nil, the waveform is produced without a spectrogram.
	Decoder  codec.Decoder
	Renderer codec.Renderer
	// Notifier is optional.
	Notifier Notifier
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	recent *ttlcache.Cache[string, struct{}]
	wg     sync.WaitGroup
}

// New returns a Handler writing to store. Call Close to release it.
func New(store *persistence.Store, collisionWindow time.Duration) *Handler {
	if collisionWindow <= 0 {
		collisionWindow = DefaultCollisionWindow
	}
	recent := ttlcache.New[string, struct{}](
		ttlcache.WithTTL[string, struct{}](collisionWindow),
		ttlcache.WithDisableTouchOnHit[string, struct{}](),
	)
	go recent.Start()
	return &Handler{
		Store:  store,
		recent: recent,
	}
}

// Close waits for the uploads being processed and stops the collision cache.
func (h *Handler) Close() {
	h.Wait()
	h.recent.Stop()
}

// Wait blocks until every upload accepted so far has been processed.
func (h *Handler) Wait() {
	h.wg.Wait()
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// Upload is a validated request ready for processing.
type Upload struct {
	Request   *buoy1.Request
	BuoyID    string
	Timestamp string
	Payload   []byte
	// RequestID identifies the request in logs and notices.
	RequestID string
}

// HandleStream reads one request from stream, validates it and writes the
// response. Persistence and derived artifacts are produced in a separate
// goroutine after the response has been sent.
func (h *Handler) HandleStream(ctx context.Context, stream Stream) {
	requestID := uuid.NewString()
	buf, err := io.ReadAll(io.LimitReader(stream, spec.MaxStreamSize+1))
	if err != nil {
		metrics.IngestRequests.WithLabelValues("read-error").Inc()
		log.Error("Failed reading request", "request_id", requestID, "error", err)
		stream.CancelRead(0)
		stream.Close()
		return
	}
	if len(buf) > spec.MaxStreamSize {
		stream.CancelRead(0)
		h.fail(stream, requestID, ErrStreamTooLarge)
		return
	}

	if m := buoy1.Method(buf); m != "POST" {
		metrics.IngestRequests.WithLabelValues("not-implemented").Inc()
		log.Warn("Unhandled request", "request_id", requestID, "method", m)
		respond(stream, []byte(spec.ResponseNotImplemented))
		return
	}

	u, err := h.validate(buf)
	if err != nil {
		h.fail(stream, requestID, err)
		return
	}
	u.RequestID = requestID
	h.checkCollision(u)

	metrics.IngestRequests.WithLabelValues("ok").Inc()
	metrics.IngestBytes.Observe(float64(len(u.Payload)))
	log.Info("Upload received", "request_id", requestID, "buoy_id", u.BuoyID,
		"timestamp", u.Timestamp, "bytes", len(u.Payload))
	respond(stream, []byte(spec.ResponseOK))

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		start := time.Now()
		err := h.Process(ctx, u)
		result := "ok"
		if err != nil {
			result = "error"
			log.Error("Failed to process upload", "request_id", requestID,
				"buoy_id", u.BuoyID, "timestamp", u.Timestamp, "error", err)
		}
		metrics.IngestProcessing.WithLabelValues(result).Observe(time.Since(start).Seconds())
	}()
}

func (h *Handler) validate(buf []byte) (*Upload, error) {
	req, err := buoy1.ParseRequest(buf)
	if err != nil {
		return nil, err
	}
	id, err := buoy1.BuoyIDFromPath(req.Path)
	if err != nil {
		return nil, err
	}
	ts := req.StartTime(h.now())
	payload, err := buoy1.StripBoundary(req.Body)
	if err != nil {
		return nil, err
	}
	return &Upload{Request: req, BuoyID: id, Timestamp: ts, Payload: payload}, nil
}

func (h *Handler) checkCollision(u *Upload) {
	key := u.BuoyID + "/" + u.Timestamp
	if h.recent.Get(key) != nil {
		metrics.IngestCollisions.Inc()
		log.Warn("Upload overwrites a recent artifact set", "request_id", u.RequestID,
			"buoy_id", u.BuoyID, "timestamp", u.Timestamp)
	}
	h.recent.Set(key, struct{}{}, ttlcache.DefaultTTL)
}

func (h *Handler) fail(stream Stream, requestID string, err error) {
	metrics.IngestRequests.WithLabelValues("invalid").Inc()
	log.Error("Failed to process request", "request_id", requestID, "error", err)
	respond(stream, []byte(fmt.Sprintf("failed to process request: %v\n", err)))
}

func respond(stream Stream, b []byte) {
	if _, err := stream.Write(b); err != nil {
		log.Error("Failed to send response", "error", err)
	}
	if err := stream.Close(); err != nil {
		log.Error("Failed to shutdown stream", "error", err)
	}
}

// Process persists the raw payload, derives the waveform and spectrogram
// when the payload is larger than spec.MinDecodeSize and finally writes the
// metadata file. The metadata file is not written if an earlier step fails.
func (h *Handler) Process(ctx context.Context, u *Upload) error {
	id, ts, raw := u.BuoyID, u.Timestamp, u.Payload
	rawFile, err := h.Store.WriteRaw(id, ts, raw)
	if err != nil {
		return fmt.Errorf("cannot write raw payload: %w", err)
	}
	files := []string{rawFile.Path}

	decodeErrors := 0
	if len(raw) > spec.MinDecodeSize && h.Decoder != nil {
		wav, err := h.Store.Produce(id, ts, persistence.ExtWaveform, func(tmp string) error {
			n, err := h.Decoder.Decode(ctx, rawFile.Path, tmp)
			decodeErrors = n
			return err
		})
		if err != nil {
			return fmt.Errorf("cannot decode payload: %w", err)
		}
		files = append(files, wav.Path)
		metrics.IngestDecodeErrors.Add(float64(decodeErrors))

		if h.Renderer != nil {
			png, err := h.Store.Produce(id, ts, persistence.ExtSpectrogram, func(tmp string) error {
				return h.Renderer.Render(ctx, wav.Path, tmp)
			})
			if err != nil {
				return fmt.Errorf("cannot render spectrogram: %w", err)
			}
			files = append(files, png.Path)
		}
	}

	md := &model.Metadata{
		Headers:      u.Request.Headers,
		DecodeErrors: decodeErrors,
		BuoyID:       id,
	}
	mdFile, err := h.Store.WriteMetadata(id, ts, md)
	if err != nil {
		return fmt.Errorf("cannot write metadata: %w", err)
	}
	files = append(files, mdFile.Path)
	log.Debug("Upload processed", "buoy_id", id, "timestamp", ts, "decode_errors", decodeErrors)

	if h.Notifier != nil {
		err := h.Notifier.Notify(ctx, &notify.Notice{
			BuoyID:       id,
			Timestamp:    ts,
			Files:        files,
			Bytes:        len(raw),
			DecodeErrors: decodeErrors,
			UUID:         u.RequestID,
		})
		if err != nil {
			log.Warn("Failed to send notice", "buoy_id", id, "timestamp", ts, "error", err)
		}
	}
	return nil
}

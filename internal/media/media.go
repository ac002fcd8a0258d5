package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrPermissionDenied = errors.New("media capture permission denied")

// Chunk is one recorded segment of an evidence stream.
type Chunk struct {
	Data     []byte
	MimeType string
	Recorded time.Time
}

// Recorder produces a stream of fixed-length chunks. Start fails when
// the capture device is unavailable or permission was denied; a started
// stream is closed when ctx is done.
type Recorder interface {
	Start(ctx context.Context, chunkLen time.Duration) (<-chan Chunk, error)
}

// Feed is a Recorder whose chunks are pushed in from outside, for
// capture pipelines that live across the bridge.
type Feed struct {
	mu     sync.Mutex
	ch     chan Chunk
	denied error
}

func NewFeed() *Feed {
	return &Feed{}
}

// Deny makes subsequent Start calls fail. Passing nil re-allows capture.
func (f *Feed) Deny(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.denied = err
}

func (f *Feed) Start(ctx context.Context, chunkLen time.Duration) (<-chan Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.denied != nil {
		return nil, f.denied
	}
	if f.ch != nil {
		return nil, errors.New("feed already started")
	}
	ch := make(chan Chunk, 4)
	f.ch = ch

	go func() {
		<-ctx.Done()
		// Close under the lock so a concurrent Push can never send on
		// the closed channel.
		f.mu.Lock()
		if f.ch == ch {
			f.ch = nil
		}
		close(ch)
		f.mu.Unlock()
	}()
	return ch, nil
}

// PushStatus tells a producer why a chunk was or was not taken.
type PushStatus int

const (
	PushAccepted PushStatus = iota
	PushNoStream
	PushBufferFull
)

// Push delivers a chunk to the active stream.
func (f *Feed) Push(data []byte, mimeType string) PushStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ch == nil {
		return PushNoStream
	}
	select {
	case f.ch <- Chunk{Data: data, MimeType: mimeType, Recorded: time.Now()}:
		return PushAccepted
	default:
		return PushBufferFull
	}
}

// Store uploads chunks to the media host and returns their public URL.
type Store struct {
	baseURL string
	httpc   *http.Client
}

func NewStore(baseURL string) *Store {
	return &Store{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Enabled reports whether a media host is configured.
func (s *Store) Enabled() bool {
	return s.baseURL != ""
}

// Upload posts one chunk under a fresh name and returns the URL the
// backend should reference.
func (s *Store) Upload(ctx context.Context, kind string, c Chunk) (string, error) {
	if !s.Enabled() {
		return "", errors.New("no media store configured")
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	name := fmt.Sprintf("%s-%s%s", kind, uuid.NewString(), extension(c.MimeType))
	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return "", fmt.Errorf("build upload: %w", err)
	}
	if _, err := part.Write(c.Data); err != nil {
		return "", fmt.Errorf("build upload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/upload", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("upload %s: status %d: %s", name, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("upload %s: decode response: %w", name, err)
	}
	if out.URL == "" {
		return "", fmt.Errorf("upload %s: response missing url", name)
	}
	return out.URL, nil
}

func extension(mimeType string) string {
	switch {
	case strings.Contains(mimeType, "webm"):
		return ".webm"
	case strings.Contains(mimeType, "ogg"):
		return ".ogg"
	case strings.Contains(mimeType, "mp4"):
		return ".mp4"
	case strings.Contains(mimeType, "mpeg"):
		return ".mp3"
	default:
		return ".bin"
	}
}

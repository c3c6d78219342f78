package remote

import (
	"context"
	"net"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/Capricia-k/WoSport/internal/auth"
	"github.com/Capricia-k/WoSport/internal/config"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
)

type recorded struct {
	path  string
	auth  string
	body  map[string]map[string]any
	param map[string]string
}

type fakeBackend struct {
	mu     sync.Mutex
	calls  []recorded
	status int
	delay  time.Duration
}

// record stores the request and reports whether it already answered it.
func (b *fakeBackend) record(c *fiber.Ctx) bool {
	var body map[string]map[string]any
	_ = c.BodyParser(&body)
	b.mu.Lock()
	b.calls = append(b.calls, recorded{
		path:  c.Path(),
		auth:  c.Get(fiber.HeaderAuthorization),
		body:  body,
		param: c.AllParams(),
	})
	status, delay := b.status, b.delay
	b.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if status != 0 {
		_ = c.Status(status).SendString("boom")
		return true
	}
	return false
}

func (b *fakeBackend) last() recorded {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[len(b.calls)-1]
}

func startBackend(t *testing.T, b *fakeBackend) string {
	t.Helper()
	app := fiber.New(fiber.Config{Immutable: true})
	api := app.Group("/api/v1")
	api.Post("/users/:uid/sessions", func(c *fiber.Ctx) error {
		if b.record(c) {
			return nil
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": 12, "start_time": "2024-05-01T07:00:00Z"})
	})
	api.Post("/users/:uid/sessions/:id/positions", func(c *fiber.Ctx) error {
		if b.record(c) {
			return nil
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": 1})
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	go func() {
		_ = app.Listener(ln)
	}()
	t.Cleanup(func() { _ = app.Shutdown() })
	return "http://" + ln.Addr().String() + "/api/v1"
}

func TestCreateSessionAndAppendPosition(t *testing.T) {
	b := &fakeBackend{}
	base := startBackend(t, b)

	client, err := NewClient(config.Config{APIBaseURL: base + "/", APIToken: "tok", APIUserID: "7", APITimeout: time.Second})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	session, err := client.CreateSession(context.Background())
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if session.ID != "12" {
		t.Fatalf("expected numeric id as string, got %q", session.ID)
	}
	if !session.StartedAt.Equal(time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start time: %v", session.StartedAt)
	}
	call := b.last()
	if call.param["uid"] != "7" || call.auth != "Bearer tok" {
		t.Fatalf("unexpected request: %+v", call)
	}
	if _, ok := call.body["session"]["start_time"]; !ok {
		t.Fatalf("expected session.start_time in body: %+v", call.body)
	}

	if err := client.AppendPosition(context.Background(), session.ID, 48.8566, 2.3522); err != nil {
		t.Fatalf("append position: %v", err)
	}
	call = b.last()
	if call.param["id"] != "12" {
		t.Fatalf("unexpected session param: %+v", call.param)
	}
	if call.body["position"]["latitude"] != 48.8566 || call.body["position"]["longitude"] != 2.3522 {
		t.Fatalf("unexpected position body: %+v", call.body)
	}
}

func TestNonSuccessStatusIsStatusError(t *testing.T) {
	b := &fakeBackend{status: fiber.StatusUnprocessableEntity}
	base := startBackend(t, b)

	client, err := NewClient(config.Config{APIBaseURL: base, APIUserID: "7"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = client.CreateSession(context.Background())
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != fiber.StatusUnprocessableEntity {
		t.Fatalf("expected status error, got %v", err)
	}
	if b.last().auth != "" {
		t.Fatalf("no token configured, expected no authorization header")
	}
}

func TestPathSegmentsAreEscaped(t *testing.T) {
	b := &fakeBackend{}
	base := startBackend(t, b)

	client, err := NewClient(config.Config{APIBaseURL: base, APIUserID: "u 7"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := client.AppendPosition(context.Background(), "a/b?c", 1, 2); err != nil {
		t.Fatalf("append position: %v", err)
	}

	call := b.last()
	uid, _ := url.PathUnescape(call.param["uid"])
	id, _ := url.PathUnescape(call.param["id"])
	if uid != "u 7" || id != "a/b?c" {
		t.Fatalf("unexpected params: %+v", call.param)
	}
	if call.body["position"]["latitude"] != 1.0 {
		t.Fatalf("unexpected body: %+v", call.body)
	}
}

func TestAppendPositionHonoursContext(t *testing.T) {
	b := &fakeBackend{delay: 500 * time.Millisecond}
	base := startBackend(t, b)

	client, err := NewClient(config.Config{APIBaseURL: base, APIUserID: "7", APITimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	err = client.AppendPosition(ctx, "12", 1, 1)
	if err == nil {
		t.Fatalf("expected error on expired context")
	}
	if time.Since(start) > 400*time.Millisecond {
		t.Fatalf("append did not return on context expiry")
	}

	cancelled, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	if err := client.AppendPosition(cancelled, "12", 1, 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(config.Config{}); err == nil {
		t.Fatalf("expected missing base url error")
	}
	if _, err := NewClient(config.Config{APIBaseURL: "http://x"}); err == nil {
		t.Fatalf("expected missing user error")
	}

	token, err := auth.SignToken("secret", "99", time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	client, err := NewClient(config.Config{APIBaseURL: "http://x", APIToken: token})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if client.userID != "99" {
		t.Fatalf("expected user id from token claims, got %q", client.userID)
	}
	if client.timeout != 10*time.Second {
		t.Fatalf("expected default timeout, got %v", client.timeout)
	}
}

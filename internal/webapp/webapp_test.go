package webapp

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func TestServiceWorkerScript(t *testing.T) {
	svc, err := NewService()
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	script := string(svc.ServiceWorker())
	if !strings.Contains(script, `const CACHE_NAME = "`+CacheName+`"`) {
		t.Fatalf("script should pin the cache name, got:\n%s", script)
	}
	for _, asset := range precacheAssets {
		if !strings.Contains(script, `"`+asset+`"`) {
			t.Fatalf("precache list missing %s", asset)
		}
	}
	for _, listener := range []string{`"install"`, `"activate"`, `"fetch"`, `"push"`, `"notificationclick"`} {
		if !strings.Contains(script, "addEventListener("+listener) {
			t.Fatalf("script missing %s listener", listener)
		}
	}
	if !strings.Contains(script, "caches.delete(name)") {
		t.Fatalf("activate should clean up old caches")
	}
}

func TestManifestShape(t *testing.T) {
	svc, err := NewService()
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	var man map[string]any
	if err := json.Unmarshal(svc.Manifest(), &man); err != nil {
		t.Fatalf("manifest is not valid JSON: %v", err)
	}
	if man["name"] != "RouteGuard" || man["display"] != "standalone" {
		t.Fatalf("unexpected manifest: %v", man)
	}
	icons, ok := man["icons"].([]any)
	if !ok || len(icons) != 2 {
		t.Fatalf("manifest should declare two icons: %v", man["icons"])
	}
}

func TestRoutes(t *testing.T) {
	svc, err := NewService()
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	app := fiber.New()
	RegisterRoutes(app, svc)

	resp, err := app.Test(httptest.NewRequest("GET", "/sw.js", nil))
	if err != nil {
		t.Fatalf("sw.js request: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("sw.js status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get(fiber.HeaderContentType); !strings.Contains(ct, "javascript") {
		t.Fatalf("sw.js content type %q", ct)
	}
	if resp.Header.Get("Service-Worker-Allowed") != "/" {
		t.Fatalf("service worker scope header missing")
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "CACHE_NAME") {
		t.Fatalf("unexpected sw.js body")
	}

	resp, err = app.Test(httptest.NewRequest("GET", "/manifest.json", nil))
	if err != nil {
		t.Fatalf("manifest request: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("manifest status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get(fiber.HeaderContentType); ct != "application/manifest+json" {
		t.Fatalf("manifest content type %q", ct)
	}
}

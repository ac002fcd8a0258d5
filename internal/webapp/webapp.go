package webapp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/template"

	"github.com/gofiber/fiber/v2"
)

// CacheName is bumped whenever the precached shell changes so stale
// caches are dropped on activate.
const CacheName = "routeguard-v1.0.0"

var precacheAssets = []string{
	"/",
	"/static/css/style.css",
	"/static/js/app.js",
	"/static/icons/icon-192.png",
	"/static/icons/icon-512.png",
	"/offline.html",
}

var swTemplate = template.Must(template.New("sw").Parse(`const CACHE_NAME = {{.CacheName}};
const PRECACHE = {{.Assets}};

self.addEventListener("install", (event) => {
  event.waitUntil(
    caches.open(CACHE_NAME).then((cache) => cache.addAll(PRECACHE))
  );
  self.skipWaiting();
});

self.addEventListener("activate", (event) => {
  event.waitUntil(
    caches
      .keys()
      .then((names) =>
        Promise.all(
          names
            .filter((name) => name !== CACHE_NAME)
            .map((name) => caches.delete(name))
        )
      )
      .then(() => self.clients.claim())
  );
});

self.addEventListener("fetch", (event) => {
  if (event.request.method !== "GET") {
    return;
  }
  event.respondWith(
    caches.match(event.request).then((cached) => cached || fetch(event.request))
  );
});

self.addEventListener("push", (event) => {
  const payload = event.data ? event.data.json() : {};
  event.waitUntil(
    self.registration.showNotification(payload.title || "RouteGuard", {
      body: payload.body || "Safety update available",
      icon: "/static/icons/icon-192.png",
      badge: "/static/icons/icon-192.png",
      actions: [
        { action: "explore", title: "Open" },
        { action: "close", title: "Dismiss" },
      ],
    })
  );
});

self.addEventListener("notificationclick", (event) => {
  event.notification.close();
  if (event.action !== "close") {
    event.waitUntil(clients.openWindow("/"));
  }
});
`))

type manifestIcon struct {
	Src   string `json:"src"`
	Sizes string `json:"sizes"`
	Type  string `json:"type"`
}

type manifest struct {
	Name            string         `json:"name"`
	ShortName       string         `json:"short_name"`
	Description     string         `json:"description"`
	StartURL        string         `json:"start_url"`
	Display         string         `json:"display"`
	ThemeColor      string         `json:"theme_color"`
	BackgroundColor string         `json:"background_color"`
	Icons           []manifestIcon `json:"icons"`
}

// Service serves the installable app shell: the service worker script
// and the web manifest, both rendered once at startup.
type Service struct {
	sw       []byte
	manifest []byte
}

func NewService() (*Service, error) {
	assets, err := json.Marshal(precacheAssets)
	if err != nil {
		return nil, fmt.Errorf("render precache list: %w", err)
	}

	var sw bytes.Buffer
	err = swTemplate.Execute(&sw, map[string]string{
		"CacheName": fmt.Sprintf("%q", CacheName),
		"Assets":    string(assets),
	})
	if err != nil {
		return nil, fmt.Errorf("render service worker: %w", err)
	}

	man, err := json.MarshalIndent(manifest{
		Name:            "RouteGuard",
		ShortName:       "RouteGuard",
		Description:     "Safety-aware walking routes and live trip tracking",
		StartURL:        "/",
		Display:         "standalone",
		ThemeColor:      "#667eea",
		BackgroundColor: "#ffffff",
		Icons: []manifestIcon{
			{Src: "/static/icons/icon-192.png", Sizes: "192x192", Type: "image/png"},
			{Src: "/static/icons/icon-512.png", Sizes: "512x512", Type: "image/png"},
		},
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render manifest: %w", err)
	}

	return &Service{sw: sw.Bytes(), manifest: man}, nil
}

func (s *Service) ServiceWorker() []byte {
	return s.sw
}

func (s *Service) Manifest() []byte {
	return s.manifest
}

func RegisterRoutes(r fiber.Router, svc *Service) {
	r.Get("/sw.js", func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderContentType, "application/javascript; charset=utf-8")
		c.Set("Service-Worker-Allowed", "/")
		return c.Send(svc.ServiceWorker())
	})

	r.Get("/manifest.json", func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderContentType, "application/manifest+json")
		return c.Send(svc.Manifest())
	})
}

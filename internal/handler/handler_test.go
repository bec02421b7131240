package handler_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/domain-proxy/internal/backend"
	"github.com/angeloszaimis/domain-proxy/internal/cache"
	"github.com/angeloszaimis/domain-proxy/internal/handler"
	"github.com/angeloszaimis/domain-proxy/internal/latency"
	"github.com/angeloszaimis/domain-proxy/internal/loadbalancer"
	"github.com/angeloszaimis/domain-proxy/internal/metrics"
	"github.com/angeloszaimis/domain-proxy/internal/upstream"
)

const (
	domain  = "my-service.test"
	clientA = "10.0.0.1:40000"
	clientB = "10.0.0.2:40000"
	ttl     = 60 * time.Second
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeFetcher answers from a fixed status and a body derived from the URL and
// call number, optionally advancing the clock to simulate upstream latency.
type fakeFetcher struct {
	mu      sync.Mutex
	calls   []string
	status  int
	err     error
	clock   *fakeClock
	latency time.Duration
}

func (f *fakeFetcher) Fetch(_ context.Context, targetURL string) (*upstream.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, targetURL)
	if f.clock != nil {
		f.clock.Advance(f.latency)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &upstream.Response{
		StatusCode: f.status,
		Body:       []byte(fmt.Sprintf("response %d from %s", len(f.calls), targetURL)),
	}, nil
}

func (f *fakeFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

var _ = Describe("ProxyHandler", func() {
	var (
		h         *handler.ProxyHandler
		lb        *loadbalancer.LoadBalancer
		respCache *cache.ResponseCache
		tracker   *latency.Tracker
		fetcher   *fakeFetcher
		clock     *fakeClock
		log       *slog.Logger
		cacheTTL  time.Duration
		strategy  string
		hosts     []*backend.Host
	)

	build := func() {
		svc, err := loadbalancer.NewService(domain, hosts, strategy)
		Expect(err).NotTo(HaveOccurred())

		lb = loadbalancer.NewLoadBalancer([]*loadbalancer.Service{svc})
		h = handler.NewProxyHandler(log, lb, respCache, cacheTTL, fetcher, tracker, handler.WithClock(clock.Now))
	}

	serve := func(method, target, remoteAddr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "http://"+domain+target, nil)
		req.RemoteAddr = remoteAddr
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	BeforeEach(func() {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
		respCache = cache.New()
		tracker = latency.NewTracker()
		clock = &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
		fetcher = &fakeFetcher{status: http.StatusOK, clock: clock}
		cacheTTL = ttl
		strategy = "round-robin"
		hosts = []*backend.Host{
			backend.New("10.1.0.1", 9001),
			backend.New("10.1.0.2", 9002),
			backend.New("10.1.0.3", 9003),
		}
	})

	JustBeforeEach(func() {
		build()
	})

	Describe("upstream responses", func() {
		It("should proxy a GET to the selected host", func() {
			w := serve(http.MethodGet, "/index.html?x=1", clientA)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(fetcher.Calls()).To(Equal([]string{"http://10.1.0.1:9001/index.html?x=1"}))
			Expect(w.Body.String()).To(Equal("response 1 from http://10.1.0.1:9001/index.html?x=1"))
			Expect(w.Header().Get("Content-Length")).To(Equal(strconv.Itoa(w.Body.Len())))
			Expect(w.Header().Get("Content-Type")).To(Equal(handler.ContentType))
		})

		It("should pass the upstream status through", func() {
			fetcher.status = http.StatusInternalServerError
			w := serve(http.MethodGet, "/", clientA)
			Expect(w.Code).To(Equal(http.StatusInternalServerError))
			Expect(w.Body.String()).NotTo(BeEmpty())
		})

		It("should rotate hosts across requests for round-robin services", func() {
			for _, path := range []string{"/a", "/b", "/c", "/d", "/e"} {
				serve(http.MethodGet, path, clientA)
			}
			Expect(fetcher.Calls()).To(Equal([]string{
				"http://10.1.0.1:9001/a",
				"http://10.1.0.2:9002/b",
				"http://10.1.0.3:9003/c",
				"http://10.1.0.1:9001/d",
				"http://10.1.0.2:9002/e",
			}))
		})

		It("should send headers but no body for HEAD", func() {
			w := serve(http.MethodHead, "/page", clientA)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.Len()).To(BeZero())
			expected := len("response 1 from http://10.1.0.1:9001/page")
			Expect(w.Header().Get("Content-Length")).To(Equal(strconv.Itoa(expected)))
			Expect(fetcher.Calls()).To(HaveLen(1))
		})

		It("should not send a body for upstream 204", func() {
			fetcher.status = http.StatusNoContent
			w := serve(http.MethodGet, "/", clientA)
			Expect(w.Code).To(Equal(http.StatusNoContent))
			Expect(w.Body.Len()).To(BeZero())
		})
	})

	Describe("unmatched domain", func() {
		It("should answer 404 without contacting upstream", func() {
			req := httptest.NewRequest(http.MethodGet, "http://unknown.test/", nil)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusNotFound))
			Expect(w.Body.String()).To(ContainSubstring(handler.MessageNoService))
			Expect(w.Header().Get("Content-Length")).To(Equal(strconv.Itoa(w.Body.Len())))
			Expect(fetcher.Calls()).To(BeEmpty())
			Expect(tracker.Snapshot().Recorded).To(BeTrue())
		})

		It("should not strip the port from the host header", func() {
			req := httptest.NewRequest(http.MethodGet, "http://"+domain+":8080/", nil)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			Expect(w.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("upstream failure", func() {
		BeforeEach(func() {
			fetcher.err = fmt.Errorf("%w: connection refused", upstream.ErrFetchFailed)
		})

		It("should answer 404 with the proxy error message", func() {
			w := serve(http.MethodGet, "/", clientA)
			Expect(w.Code).To(Equal(http.StatusNotFound))
			Expect(w.Body.String()).To(ContainSubstring(handler.MessageProxyError))
		})

		It("should not cache anything", func() {
			serve(http.MethodGet, "/", clientA)
			Expect(respCache.Len()).To(BeZero())
		})

		It("should not affect later requests", func() {
			serve(http.MethodGet, "/", clientA)
			fetcher.err = nil
			w := serve(http.MethodGet, "/", clientA)
			Expect(w.Code).To(Equal(http.StatusOK))
		})
	})

	Describe("response cache", func() {
		BeforeEach(func() {
			hosts = []*backend.Host{backend.New("10.1.0.1", 9001)}
		})

		It("should answer the same client with a bodyless repeat", func() {
			first := serve(http.MethodGet, "/doc", clientA)
			Expect(first.Code).To(Equal(http.StatusOK))

			clock.Advance(time.Second)
			second := serve(http.MethodGet, "/doc", clientA)

			Expect(second.Code).To(Equal(first.Code))
			Expect(second.Body.Len()).To(BeZero())
			Expect(second.Header().Get("Content-Length")).To(Equal("0"))
			Expect(second.Header().Get("Content-Type")).To(Equal(handler.ContentType))
			Expect(fetcher.Calls()).To(HaveLen(1))
		})

		It("should serve a different client the full cached body", func() {
			first := serve(http.MethodGet, "/doc", clientA)

			clock.Advance(time.Second)
			second := serve(http.MethodGet, "/doc", clientB)

			Expect(second.Code).To(Equal(http.StatusOK))
			Expect(second.Body.String()).To(Equal(first.Body.String()))
			Expect(second.Header().Get("Content-Length")).To(Equal(strconv.Itoa(first.Body.Len())))
			Expect(fetcher.Calls()).To(HaveLen(1))
		})

		It("should keep the cached status code", func() {
			fetcher.status = http.StatusAccepted
			serve(http.MethodGet, "/doc", clientA)

			Expect(serve(http.MethodGet, "/doc", clientA).Code).To(Equal(http.StatusAccepted))
			Expect(serve(http.MethodGet, "/doc", clientB).Code).To(Equal(http.StatusAccepted))
		})

		It("should refetch after expiry and record the new client", func() {
			serve(http.MethodGet, "/doc", clientA)

			clock.Advance(ttl)
			refreshed := serve(http.MethodGet, "/doc", clientB)
			Expect(refreshed.Code).To(Equal(http.StatusOK))
			Expect(refreshed.Body.String()).To(HavePrefix("response 2 "))
			Expect(fetcher.Calls()).To(HaveLen(2))

			res := respCache.Lookup("http://10.1.0.1:9001/doc", cache.Fingerprint(clientB), ttl, clock.Now())
			Expect(res.Outcome).To(Equal(cache.NotModified))
			Expect(res.Entry.CreatedAt).To(Equal(clock.Now()))
			Expect(string(res.Entry.Body)).To(HavePrefix("response 2 "))

			res = respCache.Lookup("http://10.1.0.1:9001/doc", cache.Fingerprint(clientA), ttl, clock.Now())
			Expect(res.Outcome).To(Equal(cache.CachedHit))
		})

		It("should omit the cached body for HEAD but keep its length", func() {
			first := serve(http.MethodGet, "/doc", clientA)
			w := serve(http.MethodHead, "/doc", clientB)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.Len()).To(BeZero())
			Expect(w.Header().Get("Content-Length")).To(Equal(strconv.Itoa(first.Body.Len())))
			Expect(fetcher.Calls()).To(HaveLen(1))
		})

		It("should record latency for cache answers", func() {
			fetcher.latency = 100 * time.Millisecond
			serve(http.MethodGet, "/doc", clientA)
			serve(http.MethodGet, "/doc", clientA)

			stats := tracker.Snapshot()
			Expect(stats.LastRequest).To(BeZero())
			Expect(stats.Average).To(Equal(50 * time.Millisecond))
		})

		Context("with several hosts", func() {
			BeforeEach(func() {
				hosts = []*backend.Host{backend.New("10.1.0.1", 9001), backend.New("10.1.0.2", 9002)}
			})

			It("should key entries by the resolved target URL", func() {
				serve(http.MethodGet, "/doc", clientA)
				// round-robin moves to the next host, which is a different URL
				w := serve(http.MethodGet, "/doc", clientA)
				Expect(w.Body.Len()).NotTo(BeZero())
				Expect(fetcher.Calls()).To(HaveLen(2))
				Expect(respCache.Len()).To(Equal(2))
			})
		})

		Context("when disabled", func() {
			BeforeEach(func() {
				cacheTTL = 0
				strategy = "random"
			})

			It("should fetch upstream every time and never store", func() {
				for i := 0; i < 3; i++ {
					w := serve(http.MethodGet, "/doc", clientA)
					Expect(w.Body.Len()).NotTo(BeZero())
				}
				Expect(fetcher.Calls()).To(HaveLen(3))
				Expect(respCache.Len()).To(BeZero())
			})
		})
	})

	Describe("latency accounting", func() {
		It("should seed and then halve the average", func() {
			fetcher.latency = 100 * time.Millisecond
			serve(http.MethodGet, "/a", clientA)

			stats := tracker.Snapshot()
			Expect(stats.Average).To(Equal(100 * time.Millisecond))
			Expect(stats.LastRequest).To(Equal(100 * time.Millisecond))

			fetcher.latency = 300 * time.Millisecond
			serve(http.MethodGet, "/b", clientA)

			stats = tracker.Snapshot()
			Expect(stats.Average).To(Equal(200 * time.Millisecond))
			Expect(stats.LastRequest).To(Equal(300 * time.Millisecond))
		})

		It("should record once on failure paths", func() {
			fetcher.err = errors.New("boom")
			fetcher.latency = 40 * time.Millisecond
			serve(http.MethodGet, "/a", clientA)

			stats := tracker.Snapshot()
			Expect(stats.Recorded).To(BeTrue())
			Expect(stats.Average).To(Equal(40 * time.Millisecond))
		})
	})

	Describe("metrics events", func() {
		It("should emit request, selection, cache and completion events", func() {
			collector := metrics.NewCollector(16, log, nil)
			h = handler.NewProxyHandler(log, lb, respCache, cacheTTL, fetcher, tracker,
				handler.WithClock(clock.Now),
				handler.WithCollector(collector))

			serve(http.MethodGet, "/a", clientA)

			ctx, cancel := context.WithCancel(context.Background())
			collector.Start(ctx)
			cancel()

			Eventually(func() metrics.DomainMetrics {
				return collector.Snapshot().Domains[domain]
			}).Should(And(
				HaveField("Requests", int64(1)),
				HaveField("Selections", HaveKeyWithValue("10.1.0.1:9001", int64(1))),
				HaveField("Cache", HaveKeyWithValue("miss", int64(1))),
				HaveField("StatusCodes", HaveKeyWithValue(200, int64(1))),
			))
		})
	})
})

var _ = Describe("ProxyHandler with a real upstream", func() {
	It("should proxy through HTTPFetcher and cache the result", func() {
		var hits atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"path":"` + r.URL.Path + `"}`))
		}))
		DeferCleanup(server.Close)

		u, err := url.Parse(server.URL)
		Expect(err).NotTo(HaveOccurred())
		port, err := strconv.Atoi(u.Port())
		Expect(err).NotTo(HaveOccurred())

		svc, err := loadbalancer.NewService(domain, []*backend.Host{backend.New(u.Hostname(), port)}, "")
		Expect(err).NotTo(HaveOccurred())

		h := handler.NewProxyHandler(
			slog.New(slog.NewTextHandler(io.Discard, nil)),
			loadbalancer.NewLoadBalancer([]*loadbalancer.Service{svc}),
			cache.New(),
			ttl,
			upstream.NewHTTPFetcher(time.Second),
			latency.NewTracker(),
		)

		req := httptest.NewRequest(http.MethodGet, "http://"+domain+"/items", nil)
		req.RemoteAddr = clientA
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		Expect(w.Code).To(Equal(http.StatusCreated))
		Expect(w.Body.String()).To(Equal(`{"path":"/items"}`))
		Expect(w.Header().Get("Content-Type")).To(Equal(handler.ContentType))

		req = httptest.NewRequest(http.MethodGet, "http://"+domain+"/items", nil)
		req.RemoteAddr = clientB
		w = httptest.NewRecorder()
		h.ServeHTTP(w, req)

		Expect(w.Code).To(Equal(http.StatusCreated))
		Expect(w.Body.String()).To(Equal(`{"path":"/items"}`))
		Expect(hits.Load()).To(Equal(int32(1)))
	})
})

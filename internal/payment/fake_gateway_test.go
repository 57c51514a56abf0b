package payment_test

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"time"
)

type recordedCall struct {
	Method string
	Path   string
	Form   url.Values
}

// fakeGateway is an httptest server speaking the subset of the Stripe API the
// engine uses. Statuses are configurable per endpoint.
type fakeGateway struct {
	server *httptest.Server

	mu            sync.Mutex
	calls         []recordedCall
	createStatus  string
	refreshStatus string
	captureStatus string
	failWith      int
	failBody      string
	inFlight      int
	maxInFlight   int
	holdFor       time.Duration
	nextIntent    int
}

func newFakeGateway() *fakeGateway {
	g := &fakeGateway{
		createStatus:  "requires_capture",
		refreshStatus: "requires_capture",
		captureStatus: "succeeded",
	}
	g.server = httptest.NewServer(http.HandlerFunc(g.handle))
	return g
}

func (g *fakeGateway) URL() string {
	return g.server.URL + "/v1"
}

func (g *fakeGateway) Close() {
	g.server.Close()
}

func (g *fakeGateway) Calls() []recordedCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]recordedCall(nil), g.calls...)
}

func (g *fakeGateway) MaxInFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.maxInFlight
}

func (g *fakeGateway) set(fn func(g *fakeGateway)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(g)
}

func (g *fakeGateway) handle(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	values, _ := url.ParseQuery(string(raw))

	g.mu.Lock()
	g.calls = append(g.calls, recordedCall{Method: r.Method, Path: r.URL.Path, Form: values})
	g.inFlight++
	if g.inFlight > g.maxInFlight {
		g.maxInFlight = g.inFlight
	}
	hold := g.holdFor
	failWith, failBody := g.failWith, g.failBody
	g.mu.Unlock()

	if hold > 0 {
		time.Sleep(hold)
	}

	defer func() {
		g.mu.Lock()
		g.inFlight--
		g.mu.Unlock()
	}()

	w.Header().Set("Content-Type", "application/json")

	if failWith != 0 {
		w.WriteHeader(failWith)
		_, _ = io.WriteString(w, failBody)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/v1")
	switch {
	case r.Method == http.MethodPost && path == "/payment_intents":
		g.mu.Lock()
		g.nextIntent++
		id := fmt.Sprintf("pi_test_%d", g.nextIntent)
		status := g.createStatus
		g.mu.Unlock()
		g.writeIntent(w, id, status, values.Get("amount"), values.Get("currency"))

	case r.Method == http.MethodPost && strings.HasSuffix(path, "/capture"):
		id := strings.TrimSuffix(strings.TrimPrefix(path, "/payment_intents/"), "/capture")
		g.writeIntent(w, id, g.status(func(g *fakeGateway) string { return g.captureStatus }), "", "")

	case r.Method == http.MethodPost && strings.HasSuffix(path, "/cancel"):
		id := strings.TrimSuffix(strings.TrimPrefix(path, "/payment_intents/"), "/cancel")
		g.writeIntent(w, id, "canceled", "", "")

	case r.Method == http.MethodGet && strings.HasPrefix(path, "/payment_intents/"):
		id := strings.TrimPrefix(path, "/payment_intents/")
		g.writeIntent(w, id, g.status(func(g *fakeGateway) string { return g.refreshStatus }), "", "")

	case r.Method == http.MethodPost && path == "/refunds":
		body := map[string]interface{}{
			"id":             "re_test_1",
			"object":         "refund",
			"status":         "succeeded",
			"payment_intent": values.Get("payment_intent"),
		}
		if amount := values.Get("amount"); amount != "" {
			body["amount"] = json.Number(amount)
		}
		_ = json.NewEncoder(w).Encode(body)

	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":{"type":"invalid_request_error","message":"Unrecognized request URL"}}`)
	}
}

func (g *fakeGateway) status(pick func(g *fakeGateway) string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return pick(g)
}

func (g *fakeGateway) writeIntent(w http.ResponseWriter, id, status, amount, currency string) {
	body := map[string]interface{}{
		"id":            id,
		"object":        "payment_intent",
		"status":        status,
		"client_secret": id + "_secret_abc",
	}
	if amount != "" {
		body["amount"] = json.Number(amount)
	}
	if currency != "" {
		body["currency"] = currency
	}
	_ = json.NewEncoder(w).Encode(body)
}

package proxy

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kinohub/strangler-proxy/internal/httpx"
)

// Headers tied to a single transport connection. Never copied verbatim in
// either direction; Content-Length is recomputed from the relayed body.
var hopByHop = map[string]struct{}{
	"Host":              {},
	"Connection":        {},
	"Content-Length":    {},
	"Transfer-Encoding": {},
}

// Forwarder bridges one inbound request to its decided destination and
// relays the downstream response back. Bodies are fully buffered on both
// legs, one attempt per request, bounded by the relay timeout.
type Forwarder struct {
	client *http.Client
	log    *slog.Logger
}

func NewForwarder(transport http.RoundTripper, relayTimeout time.Duration, log *slog.Logger) *Forwarder {
	return &Forwarder{
		client: &http.Client{Transport: transport, Timeout: relayTimeout},
		log:    log,
	}
}

// Relay executes the pass-through bridge for one request. Failures never
// escape: every error becomes an HTTP response on the original connection.
// The downstream call deliberately does not inherit the client's context, so
// a client disconnect cannot cancel an in-flight backend call; the relay
// timeout is the only bound.
func (f *Forwarder) Relay(w http.ResponseWriter, r *http.Request, dec Decision) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			httpx.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		f.logError(dec, r.Method, err)
		httpx.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}

	out, err := http.NewRequest(r.Method, rebase(dec.Target, r.URL), bytes.NewReader(body))
	if err != nil {
		f.logError(dec, r.Method, err)
		httpx.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}
	copyHeaders(out.Header, r.Header)

	resp, err := f.client.Do(out)
	if err != nil {
		f.logError(dec, r.Method, err)
		httpx.Error(w, http.StatusBadGateway, relayReason(err))
		return
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		// Headers arrived but the body stalled or reset. Still a failed
		// attempt against the destination, mapped like any transport error.
		f.logError(dec, r.Method, err)
		httpx.Error(w, http.StatusBadGateway, relayReason(err))
		return
	}

	copyHeaders(w.Header(), resp.Header)
	w.Header().Set("Content-Length", strconv.Itoa(len(respBody)))
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(respBody)
}

func (f *Forwarder) logError(dec Decision, method string, err error) {
	f.log.Error("relay_failed",
		slog.String("destination", dec.Destination),
		slog.String("target", dec.Target.String()),
		slog.String("method", method),
		slog.String("error", err.Error()),
	)
}

// rebase keeps the inbound path and query, swapping only the authority.
// Services receive the unstripped path byte-for-byte, encoded segments
// included, exactly as the client sent it.
func rebase(target *url.URL, in *url.URL) string {
	u := *target
	u.Path = strings.TrimSuffix(target.Path, "/") + in.Path
	u.RawPath = strings.TrimSuffix(target.EscapedPath(), "/") + in.EscapedPath()
	u.RawQuery = in.RawQuery
	return u.String()
}

func copyHeaders(dst, src http.Header) {
	for k, vv := range src {
		if _, drop := hopByHop[http.CanonicalHeaderKey(k)]; drop {
			continue
		}
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

func relayReason(err error) string {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return "upstream timeout"
	}
	return err.Error()
}

// feedhealth is a sidecar probe for a notifeed instance: /healthz
// reports its own liveness, /readyz checks the upstream service's
// readiness endpoint so container orchestrators can gate on one port.
package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
)

func main() {
	addr := flag.String("addr", ":8081", "listen address for the probe")
	upstream := flag.String("upstream", "http://127.0.0.1:8080", "notifeed base URL to probe")
	timeout := flag.Duration("timeout", 2*time.Second, "upstream probe timeout")
	flag.Parse()

	client := &fasthttp.Client{
		ReadTimeout:  *timeout,
		WriteTimeout: *timeout,
	}
	readyURL := *upstream + "/readyz"

	h := func(ctx *fasthttp.RequestCtx) {
		switch string(ctx.Path()) {
		case "/health", "/healthz":
			writeStatus(ctx, fasthttp.StatusOK, "ok")
		case "/readyz":
			code, err := probe(client, readyURL, *timeout)
			if err != nil {
				writeStatus(ctx, fasthttp.StatusServiceUnavailable, "upstream unreachable")
				return
			}
			if code != fasthttp.StatusOK {
				writeStatus(ctx, fasthttp.StatusServiceUnavailable, "upstream not ready")
				return
			}
			writeStatus(ctx, fasthttp.StatusOK, "ok")
		default:
			ctx.SetStatusCode(fasthttp.StatusNotFound)
		}
	}

	fmt.Printf("feedhealth listening on %s, probing %s\n", *addr, readyURL)
	srv := &fasthttp.Server{
		Handler:            h,
		Name:               "notifeed-feedhealth",
		ReadTimeout:        5 * time.Second,
		WriteTimeout:       5 * time.Second,
		MaxRequestBodySize: 1 << 20,
	}
	if err := srv.ListenAndServe(*addr); err != nil {
		fmt.Printf("feedhealth server exit: %v\n", err)
	}
}

func probe(client *fasthttp.Client, url string, timeout time.Duration) (int, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)
	if err := client.DoTimeout(req, resp, timeout); err != nil {
		return 0, err
	}
	return resp.StatusCode(), nil
}

func writeStatus(ctx *fasthttp.RequestCtx, code int, status string) {
	ctx.Response.Header.Set("Content-Type", "application/json")
	ctx.SetStatusCode(code)
	_, _ = ctx.WriteString(fmt.Sprintf("{\"status\":%q}", status))
}

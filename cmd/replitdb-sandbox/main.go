// Command replitdb-sandbox serves the Replit Database wire protocol from an
// in-memory mock store, for developing against the client without a real
// database instance. Latency and failure injection make retry behaviour
// observable locally.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dogmatiq/ferrite"

	"github.com/hugoalh/replit-database-client-go/internal/devseed"
	"github.com/hugoalh/replit-database-client-go/pkg/replitdb/mock"
)

var (
	listenAddress = ferrite.
			String("REPLIT_DB_SANDBOX_ADDR", "the address on which the sandbox server listens").
			WithDefault(":8787").
			Required()

	seedPath = ferrite.
			String("REPLIT_DB_MOCK_SEED", "path to a YAML or JSON seed file loaded at startup").
			Optional()
)

type failConfig struct {
	rate float64
	code int
}

func main() {
	latency := flag.Duration("latency", 0, "artificial latency to inject per request")
	fail := flag.String("fail", "", "failure injection (rate=<float>,code=<httpStatus>)")
	flag.Parse()

	ferrite.Init()

	store := mock.New()
	if path, ok := seedPath.Value(); ok {
		entries, err := devseed.Load(path)
		if err != nil {
			log.Fatalf("load seed: %v", err)
		}
		if err := store.Seed(entries); err != nil {
			log.Fatalf("apply seed: %v", err)
		}
	}

	failCfg, err := parseFailConfig(*fail)
	if err != nil {
		log.Fatalf("parse fail flag: %v", err)
	}

	addr := listenAddress.Value()
	handler := withMiddleware(*latency, failCfg, storeHandler(store))

	log.Printf("replitdb-sandbox listening on %s (keys: %d)", addr, store.Len())
	log.Printf("point the client at it: REPLIT_DB_URL=http://127.0.0.1%s", portSuffix(addr))
	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Fatalf("serve: %v", err)
	}
}

func storeHandler(store *mock.Mock) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/":
			prefix := r.URL.Query().Get("prefix")
			encode := r.URL.Query().Get("encode") == "true"

			keys, err := store.ListKeys(ctx, prefix)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			lines := make([]string, len(keys))
			for i, key := range keys {
				if encode {
					lines[i] = url.PathEscape(key)
				} else {
					lines[i] = key
				}
			}
			_, _ = fmt.Fprint(w, strings.Join(lines, "\n"))

		case r.Method == http.MethodGet:
			key, err := requestKey(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			raw, err := store.Get(ctx, key)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			// Absent keys read as an empty body.
			_, _ = w.Write(raw)

		case r.Method == http.MethodPost && r.URL.Path == "/":
			if err := r.ParseForm(); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			for key, values := range r.PostForm {
				if err := store.Set(ctx, key, []byte(values[0])); err != nil {
					http.Error(w, err.Error(), http.StatusInternalServerError)
					return
				}
			}
			w.WriteHeader(http.StatusOK)

		case r.Method == http.MethodDelete:
			key, err := requestKey(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			raw, err := store.Get(ctx, key)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			if err := store.Delete(ctx, key); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			if raw == nil {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.WriteHeader(http.StatusNoContent)

		default:
			http.Error(w, "unexpected request", http.StatusBadRequest)
		}
	}
}

func requestKey(r *http.Request) (string, error) {
	return url.PathUnescape(strings.TrimPrefix(r.URL.EscapedPath(), "/"))
}

func withMiddleware(latency time.Duration, fail failConfig, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if latency > 0 {
			time.Sleep(latency)
		}
		if fail.rate > 0 && rand.Float64() < fail.rate {
			http.Error(w, "injected failure", fail.code)
			return
		}
		next(w, r)
	}
}

func parseFailConfig(raw string) (failConfig, error) {
	cfg := failConfig{code: http.StatusInternalServerError}
	if strings.TrimSpace(raw) == "" {
		return cfg, nil
	}

	for _, part := range strings.Split(raw, ",") {
		name, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			return cfg, fmt.Errorf("invalid fail segment %q", part)
		}
		switch name {
		case "rate":
			rate, err := strconv.ParseFloat(value, 64)
			if err != nil || rate < 0 || rate > 1 {
				return cfg, fmt.Errorf("invalid fail rate %q", value)
			}
			cfg.rate = rate
		case "code":
			code, err := strconv.Atoi(value)
			if err != nil || code < 400 || code > 599 {
				return cfg, fmt.Errorf("invalid fail code %q", value)
			}
			cfg.code = code
		default:
			return cfg, fmt.Errorf("unknown fail option %q", name)
		}
	}
	return cfg, nil
}

func portSuffix(addr string) string {
	if idx := strings.LastIndex(addr, ":"); idx >= 0 {
		return addr[idx:]
	}
	return addr
}

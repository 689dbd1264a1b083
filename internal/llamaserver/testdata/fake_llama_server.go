// Stand-in for llama-server in subprocess tests. Accepts the real server's
// flag spelling (only --port matters here, everything else is ignored) and
// serves the endpoint subset the handle talks to.
//
// FAKE_LLAMA_BEHAVIOR=exit makes it exit 1 immediately, FAKE_LLAMA_BEHAVIOR=hang
// makes it sleep without ever listening.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

func argValue(name string) string {
	for i, a := range os.Args {
		if a == name && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
	}
	return ""
}

func main() {
	switch os.Getenv("FAKE_LLAMA_BEHAVIOR") {
	case "exit":
		os.Exit(1)
	case "hang":
		time.Sleep(time.Hour)
	}

	port := argValue("--port")
	if port == "" {
		port = "0"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"id":"fake","meta":{"n_vocab":32000}}]}`))
	})
	mux.HandleFunc("/props", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"bos_token":"<s>"}`))
	})
	mux.HandleFunc("/tokenize", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Content    string `json:"content"`
			AddSpecial bool   `json:"add_special"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		tokens := []int{}
		if req.AddSpecial {
			tokens = append(tokens, 1)
		}
		for _, r := range req.Content {
			tokens = append(tokens, int(r))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"tokens": tokens})
	})
	mux.HandleFunc("/detokenize", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Tokens []int `json:"tokens"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		var sb strings.Builder
		for _, t := range req.Tokens {
			if t == 1 {
				continue
			}
			sb.WriteRune(rune(t))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"content": sb.String()})
	})
	mux.HandleFunc("/completion", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)

		if stream, _ := req["stream"].(bool); stream {
			w.Header().Set("Content-Type", "text/event-stream")
			fl := w.(http.Flusher)
			for _, chunk := range []string{"fake ", "generated ", "text"} {
				fmt.Fprintf(w, "data: {\"content\":%q,\"stop\":false}\n\n", chunk)
				fl.Flush()
			}
			fmt.Fprint(w, "data: {\"content\":\"\",\"stop\":true}\n\n")
			fl.Flush()
			return
		}
		// Non-streaming is only used by the logits path.
		_, _ = w.Write([]byte(`{"completion_probabilities":[{"top_probs":[{"id":5,"token":"a","prob":0.5}],"top_logprobs":[{"id":5,"token":"a","logprob":-0.69}]}]}`))
	})

	srv := &http.Server{Addr: "127.0.0.1:" + port, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("fake server: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	<-sigCh
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

package llamaserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
)

// testClient points a client at an httptest server.
func testClient(ts *httptest.Server) *client {
	return &client{http: ts.Client(), baseURL: ts.URL}
}

func TestTokenizeDetokenize(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tokenize":
			var req struct {
				Content    string `json:"content"`
				AddSpecial bool   `json:"add_special"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode tokenize request: %v", err)
			}
			if req.Content != "hi" || !req.AddSpecial {
				t.Errorf("tokenize request = %+v", req)
			}
			w.Write([]byte(`{"tokens":[1,104,105]}`))
		case "/detokenize":
			var req struct {
				Tokens []int `json:"tokens"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			if diff := cmp.Diff([]int{1, 104, 105}, req.Tokens); diff != "" {
				t.Errorf("detokenize request mismatch:\n%s", diff)
			}
			w.Write([]byte(`{"content":"hi"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()
	c := testClient(ts)

	tokens, err := c.tokenize(context.Background(), "hi", true)
	if err != nil {
		t.Fatalf("tokenize: %v", err)
	}
	if diff := cmp.Diff([]int{1, 104, 105}, tokens); diff != "" {
		t.Fatalf("tokens mismatch:\n%s", diff)
	}

	text, err := c.detokenize(context.Background(), tokens)
	if err != nil {
		t.Fatalf("detokenize: %v", err)
	}
	if text != "hi" {
		t.Fatalf("text = %q", text)
	}
}

func TestTokenizeServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer ts.Close()

	_, err := testClient(ts).tokenize(context.Background(), "x", false)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "status 500") {
		t.Fatalf("error = %v", err)
	}
}

func TestFetchVocabularySize(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"data":[{"id":"m","meta":{"n_vocab":32000}}]}`))
	}))
	defer ts.Close()

	n, ok := testClient(ts).fetchVocabularySize(context.Background())
	if !ok || n != 32000 {
		t.Fatalf("got %d, %v", n, ok)
	}
}

func TestFetchVocabularySizeAbsent(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"id":"m"}]}`))
	}))
	defer ts.Close()

	if _, ok := testClient(ts).fetchVocabularySize(context.Background()); ok {
		t.Fatal("expected ok=false when n_vocab is missing")
	}
}

func TestFetchBOSToken(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/props" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"bos_token":"<s>"}`))
	}))
	defer ts.Close()

	bos, ok := testClient(ts).fetchBOSToken(context.Background())
	if !ok || bos != "<s>" {
		t.Fatalf("got %q, %v", bos, ok)
	}
}

func TestFetchBOSTokenUnavailable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer ts.Close()

	if _, ok := testClient(ts).fetchBOSToken(context.Background()); ok {
		t.Fatal("expected ok=false on 404")
	}
}

package app

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/markdave123-py/Ledgerlens/internal/api/handlers"
	appMiddleware "github.com/markdave123-py/Ledgerlens/internal/api/middlewares"
	"github.com/markdave123-py/Ledgerlens/internal/config"
	"github.com/markdave123-py/Ledgerlens/internal/core/database/memstore"
	"github.com/markdave123-py/Ledgerlens/internal/core/ingestion_engine"
	objectclient "github.com/markdave123-py/Ledgerlens/internal/core/object-client"
	"github.com/markdave123-py/Ledgerlens/internal/core/retrieval"
	"github.com/markdave123-py/Ledgerlens/internal/services"
)

type constEmbedder struct{}

func (constEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func testRouter(t *testing.T, secret string) http.Handler {
	t.Helper()
	store := memstore.New("financial_reports")
	assets, err := objectclient.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ing, err := ingestion_engine.NewDocumentIngestor(ingestion_engine.Deps{
		Collection: store, Documents: store, Assets: assets, Embedder: constEmbedder{},
	}, ingestion_engine.DefaultIngestConfig())
	if err != nil {
		t.Fatal(err)
	}
	docs := services.NewDocumentService(store, store, assets, ing, services.NewJobService(time.Hour), nil)
	cfg := &config.Config{JWTSecret: secret, AllowedOrigins: []string{"http://localhost:5173"}}
	return NewRouter(cfg, slog.Default(),
		handlers.NewDocumentHandler(docs, assets, 1<<20),
		handlers.NewRetrievalHandler(retrieval.NewEngine(store, constEmbedder{}, retrieval.DefaultConfig(), nil)))
}

func TestRouterAuth(t *testing.T) {
	const secret = "s3cret"
	r := testRouter(t, secret)
	token, err := appMiddleware.IssueToken(secret, "ledgerctl", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		token  string
		want   int
	}{
		{"health is public", http.MethodGet, "/api/health", "", "", 200},
		{"documents need a token", http.MethodGet, "/api/documents", "", "", 401},
		{"documents with token", http.MethodGet, "/api/documents", "", token, 200},
		{"retrieve with token", http.MethodPost, "/api/retrieve/narrative", `{"query":"revenue"}`, token, 200},
		{"retrieve without token", http.MethodPost, "/api/retrieve/narrative", `{"query":"revenue"}`, "", 401},
		{"unknown route", http.MethodGet, "/api/nope", "", token, 404},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body)
			}
		})
	}
}

func TestRouterWithoutSecretIsOpen(t *testing.T) {
	r := testRouter(t, "")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	if rec.Code != 200 || !strings.Contains(rec.Body.String(), `"collection":"financial_reports"`) {
		t.Errorf("stats = %d %s", rec.Code, rec.Body)
	}
}

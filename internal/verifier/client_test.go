package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestLogger() *slog.Logger {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, nil))
}

func TestClient_HasPurchased_True(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("HTTPメソッド = %s, want POST", r.Method)
		}
		if r.URL.Path != "/internal/purchases/verify" {
			t.Errorf("パス = %s, want /internal/purchases/verify", r.URL.Path)
		}

		var req verifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("リクエストのデコードに失敗: %v", err)
		}
		if req.TouristID != 42 || req.TourID != "tour-1" {
			t.Errorf("リクエスト = %+v, want touristId=42 tourId=tour-1", req)
		}

		json.NewEncoder(w).Encode(verifyResponse{Purchased: true})
	}))
	defer server.Close()

	c := NewClient(server.URL, 3*time.Second, newTestLogger())

	purchased, err := c.HasPurchased(context.Background(), 42, "tour-1")
	if err != nil {
		t.Fatalf("HasPurchased がエラーを返した: %v", err)
	}
	if !purchased {
		t.Error("purchased = false, want true")
	}
}

func TestClient_HasPurchased_False(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(verifyResponse{Purchased: false})
	}))
	defer server.Close()

	c := NewClient(server.URL, 3*time.Second, newTestLogger())

	purchased, err := c.HasPurchased(context.Background(), 42, "tour-1")
	if err != nil {
		t.Fatalf("HasPurchased がエラーを返した: %v", err)
	}
	if purchased {
		t.Error("purchased = true, want false")
	}
}

func TestClient_HasPurchased_ServerError_ReturnsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewClient(server.URL, 3*time.Second, newTestLogger())

	purchased, err := c.HasPurchased(context.Background(), 42, "tour-1")
	if err == nil {
		t.Fatal("5xxはエラーを返すべき（呼び出し側でフェイルクローズ）")
	}
	if purchased {
		t.Error("エラー時はfalseを返すべき")
	}
}

func TestClient_HasPurchased_Timeout_ReturnsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	c := NewClient(server.URL, 20*time.Millisecond, newTestLogger())

	_, err := c.HasPurchased(context.Background(), 42, "tour-1")
	if err == nil {
		t.Fatal("タイムアウトはエラーを返すべき")
	}
}

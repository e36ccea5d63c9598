package transcribe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTranscribe_SendsMultipartAndDecodes(t *testing.T) {
	var gotLanguage, gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/inference" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		gotLanguage = r.FormValue("language")
		gotModel = r.FormValue("model")
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file part: %v", err)
		} else {
			f.Close()
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"  hello world  "}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "base")
	text, err := c.Transcribe(context.Background(), []byte{1, 2, 3}, "en")
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "hello world" {
		t.Fatalf("expected trimmed text, got %q", text)
	}
	if gotLanguage != "en" || gotModel != "base" {
		t.Fatalf("expected language/model fields, got %q/%q", gotLanguage, gotModel)
	}
}

func TestTranscribe_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "base")
	if _, err := c.Transcribe(context.Background(), nil, ""); err == nil {
		t.Fatalf("expected error on 500")
	}
}

func TestTranscribe_MissingBaseURL(t *testing.T) {
	c := NewClient("", "base")
	if _, err := c.Transcribe(context.Background(), nil, ""); err == nil {
		t.Fatalf("expected error when base url missing")
	}
}

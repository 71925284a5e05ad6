package ocr

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Em-Vi/MediScan/internal/config"
)

// Smallest valid PNG signature + IHDR prefix is enough for sniffing.
var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func TestStatic(t *testing.T) {
	got, err := Static{Text: "abc"}.Extract(context.Background(), pngBytes)
	if err != nil || got != "abc" {
		t.Fatalf("Static.Extract = %q, %v", got, err)
	}
}

func TestNew_ProviderSelection(t *testing.T) {
	if e, degraded, err := New(config.OCRConfig{Provider: "mock"}); err != nil || degraded || e == nil {
		t.Fatalf("mock: e=%v degraded=%v err=%v", e, degraded, err)
	}
	e, degraded, err := New(config.OCRConfig{Provider: "ocrspace"})
	if err != nil || !degraded {
		t.Fatalf("ocrspace without key should degrade: degraded=%v err=%v", degraded, err)
	}
	if s, ok := e.(Static); !ok || s.Text != "" {
		t.Fatalf("degraded extractor should return no text, got %#v", e)
	}
	if e, _, err := New(config.OCRConfig{Provider: "ocrspace", APIKey: "k", URL: "http://x"}); err != nil {
		t.Fatalf("ocrspace: %v", err)
	} else if _, ok := e.(*OCRSpace); !ok {
		t.Fatalf("expected *OCRSpace, got %T", e)
	}
	if _, _, err := New(config.OCRConfig{Provider: "tesseract"}); err == nil {
		t.Fatalf("unknown provider should fail")
	}
}

func TestOCRSpace_Extract_Success(t *testing.T) {
	var gotKey, gotLang, gotType, gotFile string
	var gotSize int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotKey = r.FormValue("apikey")
		gotLang = r.FormValue("language")
		gotType = r.FormValue("filetype")
		f, hdr, err := r.FormFile("file")
		if err == nil {
			gotFile = hdr.Filename
			b, _ := io.ReadAll(f)
			gotSize = len(b)
		}
		_, _ = io.WriteString(w, `{"ParsedResults":[{"ParsedText":"Amoxicillin 500mg\r\n"},{"ParsedText":"  "},{"ParsedText":"TID x 7 days"}],"OCRExitCode":1,"IsErroredOnProcessing":false}`)
	}))
	defer srv.Close()

	o := NewOCRSpace("key", srv.URL, "", time.Second)
	got, err := o.Extract(context.Background(), pngBytes)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got != "Amoxicillin 500mg\nTID x 7 days" {
		t.Fatalf("unexpected text: %q", got)
	}
	if gotKey != "key" || gotLang != "eng" || gotType != "PNG" || gotFile != "prescription.png" || gotSize != len(pngBytes) {
		t.Fatalf("unexpected form: key=%q lang=%q type=%q file=%q size=%d", gotKey, gotLang, gotType, gotFile, gotSize)
	}
}

func TestOCRSpace_Extract_Failures(t *testing.T) {
	cases := map[string]struct {
		status int
		body   string
		want   string
	}{
		"errored list":   {http.StatusOK, `{"IsErroredOnProcessing":true,"ErrorMessage":["bad image","try again"]}`, "bad image; try again"},
		"errored string": {http.StatusOK, `{"IsErroredOnProcessing":true,"ErrorMessage":"quota"}`, "quota"},
		"status":         {http.StatusForbidden, `{}`, "status 403"},
		"bad json":       {http.StatusOK, `nope`, "decode"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			defer srv.Close()
			_, err := NewOCRSpace("k", srv.URL, "eng", time.Second).Extract(context.Background(), pngBytes)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestOCRSpace_Extract_EmptyImage(t *testing.T) {
	if _, err := NewOCRSpace("k", "http://127.0.0.1:0", "eng", time.Second).Extract(context.Background(), nil); err == nil {
		t.Fatalf("expected error for empty image")
	}
}

func TestErrorText(t *testing.T) {
	if errorText(nil) != "unknown error" {
		t.Fatalf("nil should be unknown error")
	}
	if errorText([]byte(`42`)) != "42" {
		t.Fatalf("unexpected fallback")
	}
}

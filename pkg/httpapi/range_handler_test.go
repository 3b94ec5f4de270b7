package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"nzbengine/pkg/mount"
)

const fixtureNZB = `<?xml version="1.0" encoding="UTF-8"?>
<nzb xmlns="http://www.newzbin.com/DTD/2003/nzb">
<file poster="p@x" date="1700000000" subject="&quot;clip.mp4&quot; yEnc (1/1)">
<groups><group>a.b.test</group></groups>
<segments><segment bytes="10" number="1">seg1@test</segment></segments>
</file>
</nzb>`

type fakeSource struct{ data map[string][]byte }

func (f *fakeSource) GetDecodedArticleBytes(ctx context.Context, messageID string) ([]byte, error) {
	return f.data[messageID], nil
}

func TestCreateMountAndStreamEndToEnd(t *testing.T) {
	src := &fakeSource{data: map[string][]byte{"seg1@test": []byte("0123456789")}}
	svc := mount.NewService(mount.NewMemoryStore(), src, 1)
	defer svc.Close()

	handler := NewRangeHandler(svc)
	mux := http.NewServeMux()
	handler.Register(mux)

	createReq := httptest.NewRequest(http.MethodPost, "/mounts", strings.NewReader(fixtureNZB))
	createRec := httptest.NewRecorder()
	mux.ServeHTTP(createRec, createReq)
	if createRec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", createRec.Code, createRec.Body.String())
	}

	var info mount.Info
	if err := json.Unmarshal(createRec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}

	streamReq := httptest.NewRequest(http.MethodGet, "/stream/"+info.ID+"/0", nil)
	streamRec := httptest.NewRecorder()
	mux.ServeHTTP(streamRec, streamReq)
	if streamRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", streamRec.Code, streamRec.Body.String())
	}
	if streamRec.Body.String() != "0123456789" {
		t.Fatalf("got body %q", streamRec.Body.String())
	}
}

func TestStreamUnknownMountReturns404(t *testing.T) {
	svc := mount.NewService(mount.NewMemoryStore(), &fakeSource{}, 1)
	defer svc.Close()
	handler := NewRangeHandler(svc)
	mux := http.NewServeMux()
	handler.Register(mux)

	req := httptest.NewRequest(http.MethodGet, "/stream/nope/0", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

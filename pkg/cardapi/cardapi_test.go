package cardapi

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cardscan/internal/api/scanner"
	"cardscan/internal/entity"
	contextPkg "cardscan/pkg/context"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

type received struct {
	path   string
	auth   string
	fields map[string]string
	file   []byte
	name   string
}

func newCardServer(t *testing.T, status int, body string) (*httptest.Server, *[]received) {
	t.Helper()
	var got []received
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		rec := received{path: r.URL.Path, auth: r.Header.Get("Authorization"), fields: map[string]string{}}
		for k, v := range r.MultipartForm.Value {
			rec.fields[k] = v[0]
		}
		if f, h, err := r.FormFile("image"); err == nil {
			rec.file, _ = io.ReadAll(f)
			rec.name = h.Filename
			f.Close()
		}
		got = append(got, rec)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func sampleImage() entity.CardImage {
	return entity.CardImage{Data: []byte("jpeg-bytes"), ContentType: "image/jpeg", Filename: "card-front-1.jpg"}
}

func TestUploadCardFront(t *testing.T) {
	srv, got := newCardServer(t, http.StatusCreated, `{"data":{"id":"c-9","name":"Card 1"}}`)
	c := New(srv.URL+"/", time.Second, testLogger())

	ctx := contextPkg.WithAccessToken(context.Background(), "tok")
	card, err := c.UploadCardFront(ctx, entity.FrontUpload{
		GameID:        "game-1",
		Image:         sampleImage(),
		SuggestedName: "Card 1",
		CategoryID:    "cat-1",
		CardBackID:    "back-1",
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if card.ID != "c-9" {
		t.Fatalf("card %+v", card)
	}

	r := (*got)[0]
	if r.path != "/games/game-1/cards" {
		t.Fatalf("path %q", r.path)
	}
	if r.auth != "Bearer tok" {
		t.Fatalf("authorization %q", r.auth)
	}
	if r.fields["name"] != "Card 1" || r.fields["category_id"] != "cat-1" || r.fields["card_back_id"] != "back-1" {
		t.Fatalf("fields %v", r.fields)
	}
	if string(r.file) != "jpeg-bytes" || r.name != "card-front-1.jpg" {
		t.Fatalf("file %q named %q", r.file, r.name)
	}
}

func TestUploadCardFrontOmitsEmptyReferences(t *testing.T) {
	srv, got := newCardServer(t, http.StatusOK, `{"id":"c-1"}`)
	c := New(srv.URL, time.Second, testLogger())

	if _, err := c.UploadCardFront(context.Background(), entity.FrontUpload{GameID: "g", Image: sampleImage(), SuggestedName: "Card 1"}); err != nil {
		t.Fatalf("upload: %v", err)
	}
	r := (*got)[0]
	if _, ok := r.fields["card_back_id"]; ok {
		t.Fatalf("card_back_id sent for a front-only card: %v", r.fields)
	}
	if _, ok := r.fields["category_id"]; ok {
		t.Fatalf("empty category sent: %v", r.fields)
	}
	if r.auth != "" {
		t.Fatalf("authorization sent without a token: %q", r.auth)
	}
}

func TestUploadCardBack(t *testing.T) {
	srv, got := newCardServer(t, http.StatusCreated, `{"id":"b-1"}`)
	c := New(srv.URL, time.Second, testLogger())

	card, err := c.UploadCardBack(context.Background(), "g", sampleImage())
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if card.ID != "b-1" || (*got)[0].path != "/games/g/card-backs" {
		t.Fatalf("card %+v, path %q", card, (*got)[0].path)
	}
	if len((*got)[0].fields) != 0 {
		t.Fatalf("unexpected fields %v", (*got)[0].fields)
	}
}

func TestUploadFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `{"error":"boom"}`, want: scanner.ErrCardAPIRejected},
		{name: "validation", status: http.StatusUnprocessableEntity, body: `{"error":"bad image"}`, want: scanner.ErrCardAPIRejected},
		{name: "no id", status: http.StatusOK, body: `{}`, want: scanner.ErrUploadFailed},
		{name: "not json", status: http.StatusOK, body: `ok`, want: scanner.ErrUploadFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newCardServer(t, tt.status, tt.body)
			c := New(srv.URL, time.Second, testLogger())

			_, err := c.UploadCardBack(context.Background(), "g", sampleImage())
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			var uploadErr *UploadError
			if errors.As(err, &uploadErr) && uploadErr.StatusCode != tt.status {
				t.Fatalf("status %d, want %d", uploadErr.StatusCode, tt.status)
			}
		})
	}
}

func TestUploadUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	c := New(addr, 200*time.Millisecond, testLogger())
	if _, err := c.UploadCardBack(context.Background(), "g", sampleImage()); !errors.Is(err, scanner.ErrUploadFailed) {
		t.Fatalf("err = %v", err)
	}
}

func TestUploadCancelledContext(t *testing.T) {
	c := New("http://127.0.0.1:1", time.Second, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.UploadCardBack(ctx, "g", sampleImage()); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

package jobfeed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/jobbridge/internal/model"
)

// allowAllGuard はhttptestのループバックアドレスへの接続を許可するテスト用URLGuard。
type allowAllGuard struct {
	validateFn func(rawURL string) error
}

func (g *allowAllGuard) NewSafeClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

func (g *allowAllGuard) ValidateURL(rawURL string) error {
	if g.validateFn != nil {
		return g.validateFn(rawURL)
	}
	return nil
}

const rssBody = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Careers</title>
<item><title>Welder</title><link>https://acme.example.com/jobs/1</link><guid>job-1</guid></item>
</channel></rss>`

func TestIsDirectFeed(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		want        bool
	}{
		{"RSS Content-Type", "application/rss+xml", "", true},
		{"Atom Content-Type with charset", "application/atom+xml; charset=utf-8", "", true},
		{"text/xml + RSS body", "text/xml", rssBody, true},
		{"application/xml + Atom body", "application/xml", `<feed xmlns="http://www.w3.org/2005/Atom"></feed>`, true},
		{"application/xml + other XML", "application/xml", `<sitemap></sitemap>`, false},
		{"HTML", "text/html", "<html></html>", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsDirectFeed(tt.contentType, []byte(tt.body)); got != tt.want {
				t.Errorf("IsDirectFeed() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseFeedLinks(t *testing.T) {
	page := `<html><head>
<link rel="stylesheet" href="/style.css">
<link rel="alternate" type="application/rss+xml" href="/careers/rss.xml">
<link rel="alternate" type="application/atom+xml" href="https://feeds.other.example/acme.atom">
<link rel="alternate" type="text/html" href="/en">
</head><body><link rel="alternate" type="application/rss+xml" href="/ignored.xml"></body></html>`

	got := ParseFeedLinks([]byte(page), "https://acme.example.com/careers/")
	if len(got) != 2 {
		t.Fatalf("candidates = %+v, want 2", got)
	}
	if got[0].URL != "https://acme.example.com/careers/rss.xml" || got[0].FeedType != FeedTypeRSS {
		t.Errorf("candidate[0] = %+v", got[0])
	}
	if got[1].FeedType != FeedTypeAtom {
		t.Errorf("candidate[1] = %+v", got[1])
	}
}

func TestSelectBest_PrefersSameHostThenAtom(t *testing.T) {
	candidates := []Candidate{
		{URL: "https://feeds.other.example/a.atom", FeedType: FeedTypeAtom},
		{URL: "https://acme.example.com/rss.xml", FeedType: FeedTypeRSS},
		{URL: "https://acme.example.com/atom.xml", FeedType: FeedTypeAtom},
	}
	best := SelectBest(candidates, "https://acme.example.com/careers")
	if best == nil || best.URL != "https://acme.example.com/atom.xml" {
		t.Errorf("best = %+v", best)
	}
	if SelectBest(nil, "https://acme.example.com") != nil {
		t.Error("expected nil for no candidates")
	}
}

func TestDetector_Detect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/feed.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, rssBody)
	})
	mux.HandleFunc("/careers", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head><link rel="alternate" type="application/rss+xml" href="/feed.xml"></head><body></body></html>`)
	})
	mux.HandleFunc("/plain", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>no feed</title></head></html>`)
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	d := NewDetector(&allowAllGuard{}, 5*time.Second, 1<<20)

	t.Run("直接フィード", func(t *testing.T) {
		got, err := d.Detect(context.Background(), srv.URL+"/feed.xml")
		if err != nil || got != srv.URL+"/feed.xml" {
			t.Errorf("Detect = %q, %v", got, err)
		}
	})

	t.Run("HTMLからの検出", func(t *testing.T) {
		got, err := d.Detect(context.Background(), srv.URL+"/careers")
		if err != nil || got != srv.URL+"/feed.xml" {
			t.Errorf("Detect = %q, %v", got, err)
		}
	})

	for _, path := range []string{"/plain", "/gone"} {
		t.Run("未検出"+path, func(t *testing.T) {
			_, err := d.Detect(context.Background(), srv.URL+path)
			if !model.IsCode(err, model.ErrCodeFeedNotDetected) {
				t.Errorf("err = %v, want FEED_NOT_DETECTED", err)
			}
		})
	}

	t.Run("ガードで拒否", func(t *testing.T) {
		blocked := NewDetector(&allowAllGuard{validateFn: func(string) error { return errors.New("private address") }}, time.Second, 1<<20)
		_, err := blocked.Detect(context.Background(), srv.URL+"/feed.xml")
		if !model.IsCode(err, model.ErrCodeInvalidURL) {
			t.Errorf("err = %v, want INVALID_URL", err)
		}
	})

	t.Run("空URL", func(t *testing.T) {
		if _, err := d.Detect(context.Background(), " "); !model.IsCode(err, model.ErrCodeInvalidURL) {
			t.Errorf("err = %v, want INVALID_URL", err)
		}
	})
}

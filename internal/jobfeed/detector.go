// Package jobfeed は雇用者の採用フィード（RSS/Atom）の検出と解析を提供する。
package jobfeed

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/hitoshi/jobbridge/internal/model"
	"github.com/hitoshi/jobbridge/internal/security"
)

// UserAgent はフィード取得時に送信するUser-Agent。
const UserAgent = "JobBridge/1.0 (+careers feed import)"

// FeedType はフィードの種類（RSS/Atom）を表す。
type FeedType string

const (
	FeedTypeRSS  FeedType = "rss"
	FeedTypeAtom FeedType = "atom"
)

// Candidate はHTMLから検出されたフィード候補を表す。
type Candidate struct {
	URL      string
	FeedType FeedType
}

// Detector は採用ページURLからフィードURLを特定する。
type Detector struct {
	guard   security.URLGuard
	timeout time.Duration
	maxSize int64
}

// NewDetector はDetectorを生成する。
func NewDetector(guard security.URLGuard, timeout time.Duration, maxSize int64) *Detector {
	return &Detector{guard: guard, timeout: timeout, maxSize: maxSize}
}

// Detect はURLがフィードならそのまま、HTMLなら<link rel="alternate">から
// 最適なフィードURLを返す。どちらでもなければ FEED_NOT_DETECTED を返す。
func (d *Detector) Detect(ctx context.Context, inputURL string) (string, error) {
	inputURL = strings.TrimSpace(inputURL)
	if inputURL == "" {
		return "", model.NewInvalidURLError("URLが入力されていません")
	}
	if err := d.guard.ValidateURL(inputURL); err != nil {
		return "", model.NewInvalidURLError(err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, inputURL, nil)
	if err != nil {
		return "", model.NewInvalidURLError(err.Error())
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, text/html;q=0.9, */*;q=0.1")

	resp, err := d.guard.NewSafeClient(d.timeout).Do(req)
	if err != nil {
		return "", fmt.Errorf("採用ページの取得に失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", model.NewFeedNotDetectedError(inputURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, d.maxSize))
	if err != nil {
		return "", fmt.Errorf("採用ページの読み取りに失敗しました: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if IsDirectFeed(contentType, body) {
		return inputURL, nil
	}

	mediaType, _, _ := mime.ParseMediaType(contentType)
	if !strings.Contains(strings.ToLower(mediaType), "html") {
		return "", model.NewFeedNotDetectedError(inputURL)
	}

	best := SelectBest(ParseFeedLinks(body, inputURL), inputURL)
	if best == nil {
		return "", model.NewFeedNotDetectedError(inputURL)
	}
	if err := d.guard.ValidateURL(best.URL); err != nil {
		return "", model.NewInvalidURLError(err.Error())
	}
	return best.URL, nil
}

// IsDirectFeed はContent-Typeとボディの先頭からRSS/Atomかどうかを判定する。
func IsDirectFeed(contentType string, body []byte) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.Split(contentType, ";")[0])
	}
	switch strings.ToLower(mediaType) {
	case "application/rss+xml", "application/atom+xml":
		return true
	case "text/xml", "application/xml":
		return looksLikeFeed(body)
	}
	return false
}

// looksLikeFeed は先頭4KBにRSS/RDF/Atomのルート要素があるかを調べる。
func looksLikeFeed(body []byte) bool {
	if len(body) > 4096 {
		body = body[:4096]
	}
	prefix := strings.ToLower(string(body))
	if strings.Contains(prefix, "<rss") || strings.Contains(prefix, "<rdf:rdf") {
		return true
	}
	return strings.Contains(prefix, "<feed") && strings.Contains(prefix, "http://www.w3.org/2005/atom")
}

// ParseFeedLinks はHTMLのhead内の<link rel="alternate">からフィード候補を抽出する。
// 相対URLはbaseURLで解決する。
func ParseFeedLinks(htmlBody []byte, baseURL string) []Candidate {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}

	var candidates []Candidate
	z := html.NewTokenizer(bytes.NewReader(htmlBody))
	inHead := false
	for {
		switch z.Next() {
		case html.ErrorToken:
			return candidates

		case html.EndTagToken:
			if tn, _ := z.TagName(); string(tn) == "head" {
				return candidates
			}

		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := z.TagName()
			switch string(tn) {
			case "head":
				inHead = true
				continue
			case "body":
				return candidates
			case "link":
			default:
				continue
			}
			if !inHead || !hasAttr {
				continue
			}

			var rel, typ, href string
			for more := true; more; {
				var key, val []byte
				key, val, more = z.TagAttr()
				switch strings.ToLower(string(key)) {
				case "rel":
					rel = strings.ToLower(string(val))
				case "type":
					typ = strings.ToLower(string(val))
				case "href":
					href = string(val)
				}
			}
			if !hasToken(rel, "alternate") || href == "" {
				continue
			}

			var ft FeedType
			switch typ {
			case "application/rss+xml":
				ft = FeedTypeRSS
			case "application/atom+xml":
				ft = FeedTypeAtom
			default:
				continue
			}

			ref, err := url.Parse(strings.TrimSpace(href))
			if err != nil {
				continue
			}
			candidates = append(candidates, Candidate{URL: base.ResolveReference(ref).String(), FeedType: ft})
		}
	}
}

func hasToken(list, token string) bool {
	for _, f := range strings.Fields(list) {
		if f == token {
			return true
		}
	}
	return false
}

// SelectBest は同一ホスト、Atom、出現順の優先度で候補を1つ選ぶ。
func SelectBest(candidates []Candidate, inputURL string) *Candidate {
	if len(candidates) == 0 {
		return nil
	}
	inputHost := hostOf(inputURL)

	bestIdx, bestScore := 0, -1
	for i, c := range candidates {
		score := 0
		if hostOf(c.URL) == inputHost {
			score += 100
		}
		if c.FeedType == FeedTypeAtom {
			score += 10
		}
		if score > bestScore {
			bestIdx, bestScore = i, score
		}
	}
	return &candidates[bestIdx]
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

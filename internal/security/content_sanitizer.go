// Package security はアプリケーションのセキュリティ機能を提供する。
//
// 求人説明などの利用者入力やフィード由来のHTMLをbluemondayの許可リストで
// サニタイズし、外部URLへのアクセスはSSRF対策を施したクライアントに限定する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer は利用者入力のサニタイズ機能のインターフェースを定義する。
type Sanitizer interface {
	// SanitizeRichText は求人説明などの書式付きテキストをサニタイズする。
	// 許可タグ（p, br, ul, ol, li, strong, em, b, i, h3, h4, a）のみを通過させる。
	SanitizeRichText(raw string) string
	// PlainText は全てのタグを除去し、前後の空白を取り除いた文字列を返す。
	// 会社名や求人タイトルなど書式を持たない項目に使う。
	PlainText(raw string) string
}

// contentSanitizer はSanitizerの実装。
// bluemondayのポリシーはスレッドセーフに共有できる。
type contentSanitizer struct {
	rich   *bluemonday.Policy
	strict *bluemonday.Policy
}

// NewContentSanitizer はSanitizerの新しいインスタンスを生成する。
// ポリシーの内容:
//   - 許可タグ: p, br, ul, ol, li, strong, em, b, i, h3, h4, a
//   - aタグ: http/httpsの絶対URLのみ、target="_blank" と rel="nofollow noopener noreferrer" を付与
//   - script, iframe, style, img および on* 属性は除去
func NewContentSanitizer() *contentSanitizer {
	p := bluemonday.NewPolicy()
	p.AllowElements("p", "br", "ul", "ol", "li", "strong", "em", "b", "i", "h3", "h4")

	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("http", "https")
	p.AllowRelativeURLs(false)
	p.RequireParseableURLs(true)
	p.RequireNoFollowOnLinks(true)
	p.RequireNoReferrerOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)

	return &contentSanitizer{
		rich:   p,
		strict: bluemonday.StrictPolicy(),
	}
}

// SanitizeRichText は書式付きテキストをサニタイズする。
func (s *contentSanitizer) SanitizeRichText(raw string) string {
	return strings.TrimSpace(s.rich.Sanitize(raw))
}

// PlainText は全てのタグを除去する。
// StrictPolicyはエスケープ済みの文字列を返すため、平文として保存できるよう戻す。
func (s *contentSanitizer) PlainText(raw string) string {
	return strings.TrimSpace(html.UnescapeString(s.strict.Sanitize(raw)))
}

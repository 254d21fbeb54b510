// Package security はアプリケーションのセキュリティ機能を提供する。
//
// PostSanitizer は投稿本文・ハッシュタグ・画像URLをレスポンスに載せる前に無害化する。
// HTMLを含む値だけをbluemondayの許可リストポリシーに通し、プレーンテキストは保存値のまま返す。
package security

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// PostSanitizer は投稿データのサニタイズ機能のインターフェースを定義する。
type PostSanitizer interface {
	// SanitizeContent は投稿本文をサニタイズする。
	// マークアップを含まない本文はそのまま返す。
	// 含む場合は許可タグ（p, br, a, strong, em）のみを通過させ、script, iframe, styleタグおよびon*イベント属性を除去する。
	// aタグにはtarget="_blank"とrel="noopener noreferrer"が自動付与される。
	SanitizeContent(raw string) string

	// SanitizeTag はハッシュタグの前後の空白を取り除き、マークアップを含む場合は全てのHTMLを除去する。
	SanitizeTag(raw string) string

	// SanitizeImageURLs はhttp/httpsの絶対URLと "/" で始まるサーバー相対パスのみを残す。
	// 残したURLは保存値のまま返し、入力順は維持する。
	SanitizeImageURLs(urls []string) []string
}

// postSanitizer はPostSanitizerの実装。
// bluemondayのポリシーはスレッドセーフに共有できる。
type postSanitizer struct {
	content *bluemonday.Policy
	strict  *bluemonday.Policy
}

// NewPostSanitizer はPostSanitizerの新しいインスタンスを生成する。
func NewPostSanitizer() *postSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements("p", "br", "strong", "em")

	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AllowURLSchemes("http", "https")
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	return &postSanitizer{
		content: p,
		strict:  bluemonday.StrictPolicy(),
	}
}

// markupPattern はタグ・コメント・宣言の開始を検出する。"<3" や "a < b" は対象外。
var markupPattern = regexp.MustCompile(`<[a-zA-Z/!?]`)

// containsMarkup はbluemondayに通す必要があるかを判定する。
func containsMarkup(s string) bool {
	return markupPattern.MatchString(s)
}

// SanitizeContent は投稿本文をサニタイズする。
func (s *postSanitizer) SanitizeContent(raw string) string {
	if !containsMarkup(raw) {
		return raw
	}
	return s.content.Sanitize(raw)
}

// SanitizeTag はハッシュタグからHTMLを除去する。
func (s *postSanitizer) SanitizeTag(raw string) string {
	if !containsMarkup(raw) {
		return strings.TrimSpace(raw)
	}
	return strings.TrimSpace(s.strict.Sanitize(raw))
}

// SanitizeImageURLs はhttp/httpsの絶対URLとサーバー相対パスのみを残す。
func (s *postSanitizer) SanitizeImageURLs(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, raw := range urls {
		trimmed := strings.TrimSpace(raw)
		if isAllowedImageURL(trimmed) {
			out = append(out, trimmed)
		}
	}
	return out
}

// isAllowedImageURL はjavascript: や data: など他スキームと、ホストを差し替えるプロトコル相対URLを拒否する。
func isAllowedImageURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}

	switch u.Scheme {
	case "http", "https":
		return u.Host != ""
	case "":
		// "//host/x" や "/\host/x" はブラウザが別ホストとして解釈する
		return u.Host == "" &&
			strings.HasPrefix(raw, "/") &&
			!strings.HasPrefix(raw, "//") &&
			!strings.HasPrefix(raw, "/\\")
	default:
		return false
	}
}

var _ PostSanitizer = (*postSanitizer)(nil)

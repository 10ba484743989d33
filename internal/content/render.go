package content

import (
	"bytes"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

var (
	markdownEngine = goldmark.New(
		goldmark.WithExtensions(extension.GFM, extension.Linkify, extension.Table),
		goldmark.WithRendererOptions(gmhtml.WithHardWraps(), gmhtml.WithXHTML()),
	)
	sanitizer = buildSanitizer()

	videoEmbedSrcPattern = regexp.MustCompile(`^https://(?:www\.)?(?:youtube\.com/embed/|youtube-nocookie\.com/embed/|player\.vimeo\.com/video/)`)
	codeLanguagePattern  = regexp.MustCompile(`^language-[\w+#-]+$`)
)

func buildSanitizer() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.AllowElements("iframe")
	policy.AllowAttrs("class", "data-video-embed").OnElements("div")
	policy.AllowAttrs("class").Matching(codeLanguagePattern).OnElements("code")
	policy.AllowAttrs("src").Matching(videoEmbedSrcPattern).OnElements("iframe")
	policy.AllowAttrs("title", "allow", "allowfullscreen", "frameborder", "loading", "referrerpolicy").OnElements("iframe")
	return policy
}

// RenderHTML renders doc to sanitized HTML. Unknown node types render their
// children only.
func RenderHTML(doc Node) (string, error) {
	var buf bytes.Buffer
	if err := renderNode(&buf, doc); err != nil {
		return "", err
	}
	return sanitizer.Sanitize(buf.String()), nil
}

func renderNode(buf *bytes.Buffer, n Node) error {
	switch n.Type {
	case "text":
		renderText(buf, n)
		return nil
	case "markdown":
		if err := markdownEngine.Convert([]byte(n.Text), buf); err != nil {
			return fmt.Errorf("render markdown: %w", err)
		}
		return nil
	case "hardBreak":
		buf.WriteString("<br/>")
		return nil
	case "horizontalRule":
		buf.WriteString("<hr/>")
		return nil
	case "image":
		src, _ := n.Attrs["src"].(string)
		alt, _ := n.Attrs["alt"].(string)
		fmt.Fprintf(buf, `<img src="%s" alt="%s"/>`, html.EscapeString(src), html.EscapeString(alt))
		return nil
	case "youtube":
		src, _ := n.Attrs["src"].(string)
		fmt.Fprintf(buf, `<div class="video-embed" data-video-embed="true"><iframe src="%s" title="video" allowfullscreen="true" loading="lazy"></iframe></div>`, html.EscapeString(src))
		return nil
	case "codeBlock":
		lang, _ := n.Attrs["language"].(string)
		if lang != "" {
			fmt.Fprintf(buf, `<pre><code class="language-%s">`, html.EscapeString(lang))
		} else {
			buf.WriteString("<pre><code>")
		}
		buf.WriteString(html.EscapeString(PlainText(n)))
		buf.WriteString("</code></pre>")
		return nil
	}

	open, closing := blockTags(n)
	buf.WriteString(open)
	for _, child := range n.Content {
		if err := renderNode(buf, child); err != nil {
			return err
		}
	}
	buf.WriteString(closing)
	return nil
}

func blockTags(n Node) (string, string) {
	switch n.Type {
	case "paragraph":
		return "<p>", "</p>"
	case "heading":
		level := 2
		if raw, ok := n.Attrs["level"].(float64); ok && raw >= 1 && raw <= 6 {
			level = int(raw)
		}
		return fmt.Sprintf("<h%d>", level), fmt.Sprintf("</h%d>", level)
	case "blockquote":
		return "<blockquote>", "</blockquote>"
	case "bulletList":
		return "<ul>", "</ul>"
	case "orderedList":
		return "<ol>", "</ol>"
	case "listItem":
		return "<li>", "</li>"
	default:
		return "", ""
	}
}

func renderText(buf *bytes.Buffer, n Node) {
	var open, closing strings.Builder
	for _, mark := range n.Marks {
		switch mark.Type {
		case "bold", "strong":
			open.WriteString("<strong>")
			closing.WriteString("</strong>")
		case "italic", "em":
			open.WriteString("<em>")
			closing.WriteString("</em>")
		case "strike":
			open.WriteString("<del>")
			closing.WriteString("</del>")
		case "code":
			open.WriteString("<code>")
			closing.WriteString("</code>")
		case "link":
			href, _ := mark.Attrs["href"].(string)
			fmt.Fprintf(&open, `<a href="%s">`, html.EscapeString(href))
			closing.WriteString("</a>")
		}
	}
	buf.WriteString(open.String())
	buf.WriteString(html.EscapeString(n.Text))
	buf.WriteString(reverseTags(closing.String()))
}

// reverseTags reverses a run of closing tags so nested marks close in the
// opposite order they opened.
func reverseTags(closing string) string {
	if closing == "" {
		return ""
	}
	tags := strings.SplitAfter(closing, ">")
	var b strings.Builder
	for i := len(tags) - 1; i >= 0; i-- {
		b.WriteString(tags[i])
	}
	return b.String()
}

package questions

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var blockTags = map[string]bool{
	"p": true, "div": true, "ul": true, "ol": true, "blockquote": true, "table": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true, "hr": true,
}

// BodyText 将问题 HTML 正文转为纯文本：块级元素之间空一行，<pre> 代码块保留原始换行并以 ``` 包裹。
// 解析失败时原样返回去除首尾空白后的内容。
func BodyText(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.Contains(raw, "<") {
		return raw
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return raw
	}
	var parts []string
	var inline strings.Builder
	flush := func() {
		if t := collapse(inline.String()); t != "" {
			parts = append(parts, t)
		}
		inline.Reset()
	}
	doc.Find("body").Contents().Each(func(_ int, s *goquery.Selection) {
		name := goquery.NodeName(s)
		switch {
		case name == "pre":
			flush()
			if code := strings.Trim(s.Text(), "\n"); code != "" {
				parts = append(parts, "```\n"+code+"\n```")
			}
		case blockTags[name]:
			flush()
			if t := collapse(s.Text()); t != "" {
				parts = append(parts, t)
			}
		case name == "br":
			inline.WriteString(" ")
		default:
			inline.WriteString(s.Text())
		}
	})
	flush()
	return strings.Join(parts, "\n\n")
}

// collapse 合并连续空白为单个空格。
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Package richtext handles the serialized rich-text document format used for
// message content, and its conversion to platform markup.
package richtext

import "encoding/json"

// Node is one node of the rich-text document tree.
type Node struct {
	Type    string                 `json:"type"`
	Text    string                 `json:"text,omitempty"`
	Marks   []Mark                 `json:"marks,omitempty"`
	Attrs   map[string]interface{} `json:"attrs,omitempty"`
	Content []Node                 `json:"content,omitempty"`
}

// Mark is an inline formatting annotation on a text node.
type Mark struct {
	Type  string                 `json:"type"`
	Attrs map[string]interface{} `json:"attrs,omitempty"`
}

// FromPlainText wraps plain text in a single-paragraph document.
func FromPlainText(text string) string {
	doc := Node{
		Type: "doc",
		Content: []Node{
			{
				Type:    "paragraph",
				Content: []Node{{Type: "text", Text: text}},
			},
		},
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return text
	}
	return string(raw)
}

// ToMrkdwn renders a serialized document as Slack mrkdwn. Content that does
// not parse as a document is returned unchanged, so plain-text messages pass
// through.
func ToMrkdwn(content string) string {
	var doc Node
	if err := json.Unmarshal([]byte(content), &doc); err != nil || doc.Type != "doc" {
		return content
	}

	out := ""
	for i, block := range doc.Content {
		if i > 0 {
			out += "\n"
		}
		out += renderBlock(block)
	}
	return out
}

func renderBlock(n Node) string {
	switch n.Type {
	case "paragraph", "heading":
		out := ""
		for _, child := range n.Content {
			out += renderInline(child)
		}
		return out
	case "codeBlock":
		out := ""
		for _, child := range n.Content {
			out += child.Text
		}
		return "```" + out + "```"
	default:
		out := ""
		for _, child := range n.Content {
			out += renderBlock(child)
		}
		return out
	}
}

func renderInline(n Node) string {
	if n.Type != "text" {
		out := ""
		for _, child := range n.Content {
			out += renderInline(child)
		}
		return out
	}

	text := n.Text
	for _, m := range n.Marks {
		switch m.Type {
		case "bold":
			text = "*" + text + "*"
		case "italic":
			text = "_" + text + "_"
		case "strike":
			text = "~" + text + "~"
		case "code":
			text = "`" + text + "`"
		case "link":
			if href, ok := m.Attrs["href"].(string); ok && href != "" {
				text = "<" + href + "|" + text + ">"
			}
		}
	}
	return text
}

package textio

import (
	"bytes"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const pageAttr = "data-page"

func element(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String(), Attr: attrs}
}

func textNode(s string) *html.Node { return &html.Node{Type: html.TextNode, Data: s} }

func writeHTML(w io.Writer, pages []PageText) error {
	doc := &html.Node{Type: html.DocumentNode}
	doc.AppendChild(&html.Node{Type: html.DoctypeNode, Data: "html"})
	root := element(atom.Html)
	doc.AppendChild(root)

	head := element(atom.Head)
	head.AppendChild(element(atom.Meta, html.Attribute{Key: "charset", Val: "utf-8"}))
	root.AppendChild(head)

	body := element(atom.Body)
	root.AppendChild(body)
	for _, p := range pages {
		body.AppendChild(textNode("\n"))
		sec := element(atom.Section, html.Attribute{Key: pageAttr, Val: p.Name})
		h := element(atom.H1)
		h.AppendChild(textNode(p.Name))
		sec.AppendChild(h)
		ol := element(atom.Ol)
		for _, e := range p.Entries {
			ol.AppendChild(textNode("\n"))
			li := element(atom.Li)
			for i, line := range strings.Split(strings.ReplaceAll(e, "\r\n", "\n"), "\n") {
				if i > 0 {
					li.AppendChild(element(atom.Br))
				}
				if line != "" {
					li.AppendChild(textNode(line))
				}
			}
			ol.AppendChild(li)
		}
		sec.AppendChild(ol)
		body.AppendChild(sec)
	}
	body.AppendChild(textNode("\n"))
	return html.Render(w, doc)
}

func parseHTML(src []byte) ([]PageText, error) {
	doc, err := html.Parse(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}
	var (
		pages []PageText
		walk  func(n *html.Node)
	)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.H1:
				name := strings.TrimSpace(nodeText(n))
				if v, ok := attr(n.Parent, pageAttr); ok {
					name = v
				}
				pages = append(pages, PageText{Name: name})
				return
			case atom.Li:
				if len(pages) > 0 && n.Parent != nil && n.Parent.DataAtom == atom.Ol {
					cur := &pages[len(pages)-1]
					cur.Entries = append(cur.Entries, nodeText(n))
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return pages, nil
}

// nodeText concatenates the text below n, turning <br> into newlines.
func nodeText(n *html.Node) string {
	var b strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			b.WriteString(n.Data)
		case n.Type == html.ElementNode && n.DataAtom == atom.Br:
			b.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return b.String()
}

func attr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

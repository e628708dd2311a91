package parser

import (
	"bufio"
	"io"
	"strings"
)

// TextParser handles plain text files. Form feeds delimit pages; a file
// without form feeds is a single page.
type TextParser struct{}

func (p *TextParser) Parse(r io.Reader, filename string) (*Document, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var sb strings.Builder
	for scanner.Scan() {
		sb.WriteString(scanner.Text())
		sb.WriteString("\n")
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	doc := &Document{Title: stripExt(filename)}
	for _, pageText := range strings.Split(sb.String(), "\f") {
		pageText = strings.TrimSpace(pageText)
		if pageText == "" {
			continue
		}
		doc.Pages = append(doc.Pages, Page{Text: pageText})
	}
	return doc, nil
}

/*-------------------------------------------------------------------------
 *
 * SQLScribe - Documentation Converter
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package docconv turns documentation files into the markdown text the
// knowledge store keeps. HTML pages are converted with their heading
// structure preserved; markdown files pass through with title extraction.
package docconv

import (
	"bufio"
	"errors"
	"fmt"
	"html"
	"path/filepath"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

// ErrUnsupportedFormat is returned when a file format is not supported
var ErrUnsupportedFormat = errors.New("unsupported document format")

// DocumentType identifies how a file should be converted
type DocumentType string

const (
	TypeHTML     DocumentType = "html"
	TypeMarkdown DocumentType = "markdown"
	TypeText     DocumentType = "text"
	TypeUnknown  DocumentType = "unknown"
)

// DetectDocumentType detects the document type from the file extension
func DetectDocumentType(filename string) DocumentType {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".html", ".htm":
		return TypeHTML
	case ".md", ".markdown":
		return TypeMarkdown
	case ".txt":
		return TypeText
	default:
		return TypeUnknown
	}
}

// IsSupported reports whether the file can be converted
func IsSupported(filename string) bool {
	return DetectDocumentType(filename) != TypeUnknown
}

// Convert turns a document into markdown and extracts its title
func Convert(content []byte, docType DocumentType) (markdown string, title string, err error) {
	switch docType {
	case TypeHTML:
		return convertHTML(content)
	case TypeMarkdown:
		return processMarkdown(content)
	case TypeText:
		return string(content), firstNonEmptyLine(string(content)), nil
	default:
		return "", "", ErrUnsupportedFormat
	}
}

// convertHTML converts HTML to markdown. The page title becomes the H1,
// so every heading in the body is shifted down one level.
func convertHTML(content []byte) (string, string, error) {
	converter := md.NewConverter("", true, nil)

	converter.AddRules(md.Rule{
		Filter: []string{"h1", "h2", "h3", "h4", "h5", "h6"},
		Replacement: func(content string, selec *goquery.Selection, opt *md.Options) *string {
			level := 2
			switch selec.Nodes[0].Data {
			case "h1":
				level = 2
			case "h2":
				level = 3
			case "h3":
				level = 4
			case "h4":
				level = 5
			case "h5", "h6":
				level = 6
			}
			result := strings.Repeat("#", level) + " " + content
			return &result
		},
	})

	markdown, err := converter.ConvertBytes(content)
	if err != nil {
		return "", "", fmt.Errorf("failed to convert HTML: %w", err)
	}

	title := extractHTMLTitle(content)
	markdownStr := strings.TrimSpace(string(markdown))
	if title != "" {
		// The converter emits the <title> text as plain text at the top;
		// replace it with a proper heading
		if strings.HasPrefix(markdownStr, title) {
			markdownStr = strings.TrimSpace(strings.TrimPrefix(markdownStr, title))
		}
		markdownStr = "# " + title + "\n\n" + markdownStr
	}

	return markdownStr, title, nil
}

var htmlTitleRe = regexp.MustCompile(`(?i)<title[^>]*>([^<]+)</title>`)

func extractHTMLTitle(content []byte) string {
	matches := htmlTitleRe.FindSubmatch(content)
	if len(matches) > 1 {
		return strings.TrimSpace(html.UnescapeString(string(matches[1])))
	}
	return ""
}

func processMarkdown(content []byte) (string, string, error) {
	markdown := string(content)
	return markdown, extractMarkdownTitle(markdown), nil
}

// extractMarkdownTitle finds the first # heading, skipping YAML front
// matter
func extractMarkdownTitle(content string) string {
	scanner := bufio.NewScanner(strings.NewReader(content))
	inMetadata := false
	delimiters := 0

	for scanner.Scan() {
		line := scanner.Text()

		if line == "---" {
			delimiters++
			if delimiters == 1 {
				inMetadata = true
				continue
			} else if delimiters == 2 {
				inMetadata = false
				continue
			}
		}
		if inMetadata {
			continue
		}

		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(trimmed, "# "))
		}
	}
	return ""
}

func firstNonEmptyLine(content string) string {
	for _, line := range strings.Split(content, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

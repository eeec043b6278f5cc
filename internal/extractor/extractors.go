package extractor

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/PuerkitoBio/goquery"
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/parser"
	"github.com/keruna/crawlkit/internal/metadata"
	"github.com/keruna/crawlkit/pkg/failure"
	"golang.org/x/net/html"
)

/*
Named extractors run in sequence over one document. Each receives the
DocumentRoot/ContentNode pair DomExtractor produced and whatever prior
extractors already contributed, and returns its own additions. Parser merges
them in order: the first non-empty Title/TextContent wins, Links accumulate,
and Data keys from a later extractor overwrite an earlier one of the same
name.
*/

// ExtractionContext is the read-only input every NamedExtractor sees.
type ExtractionContext struct {
	SourceUrl    url.URL
	DocumentRoot *html.Node
	ContentNode  *html.Node
}

// ExtractedFields is what a NamedExtractor contributes to the running
// ParseResult. Leave a field zero to express "no opinion" rather than
// "empty" - Title/TextContent are only overwritten when still unset.
type ExtractedFields struct {
	Title       string
	TextContent string
	Links       []string
	Data        map[string]string
}

// NamedExtractor is the spec's pluggable extractor: Link, Metadata, Content
// are built in; callers can Register more of the same shape.
type NamedExtractor interface {
	Name() string
	Extract(ctx ExtractionContext, accumulated ExtractedFields) (ExtractedFields, failure.ClassifiedError)
}

// removableTags are stripped before text is collected or rendered, same set
// the teacher's sanitizer drops before conversion.
var removableTags = map[string]bool{
	"script": true, "style": true, "iframe": true, "noscript": true, "svg": true,
}

// ContentExtractor supplies Title (from <title>, falling back to the first
// <h1>) and TextContent (the content node's text with chrome tags removed
// and whitespace collapsed).
type ContentExtractor struct{}

func NewContentExtractor() ContentExtractor { return ContentExtractor{} }

func (ContentExtractor) Name() string { return "content" }

func (ContentExtractor) Extract(ctx ExtractionContext, _ ExtractedFields) (ExtractedFields, failure.ClassifiedError) {
	title := firstText(ctx.DocumentRoot, "title")
	if title == "" {
		title = firstText(ctx.ContentNode, "h1")
	}
	return ExtractedFields{
		Title:       strings.TrimSpace(title),
		TextContent: cleanText(ctx.ContentNode),
	}, nil
}

func firstText(root *html.Node, tag string) string {
	if root == nil {
		return ""
	}
	sel := goquery.NewDocumentFromNode(root).Find(tag).First()
	if sel.Length() == 0 {
		return ""
	}
	return sel.Text()
}

// cleanText renders node's text content, dropping removableTags subtrees
// entirely and collapsing runs of whitespace to single spaces.
func cleanText(node *html.Node) string {
	if node == nil {
		return ""
	}
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && removableTags[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
			buf.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(node)
	return strings.Join(strings.Fields(buf.String()), " ")
}

// LinkExtractor resolves every <a href> found anywhere in the document
// (not just the content container, since frontier discovery needs
// navigation links too) into an absolute URL against SourceUrl.
type LinkExtractor struct{}

func NewLinkExtractor() LinkExtractor { return LinkExtractor{} }

func (LinkExtractor) Name() string { return "link" }

func (l LinkExtractor) Extract(ctx ExtractionContext, _ ExtractedFields) (ExtractedFields, failure.ClassifiedError) {
	if ctx.DocumentRoot == nil {
		return ExtractedFields{}, nil
	}
	var links []string
	goquery.NewDocumentFromNode(ctx.DocumentRoot).Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
			return
		}
		if abs, ok := resolveAgainst(ctx.SourceUrl, href); ok {
			links = append(links, abs)
		}
	})
	return ExtractedFields{Links: links}, nil
}

func resolveAgainst(base url.URL, raw string) (string, bool) {
	ref, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", false
	}
	resolved.Fragment = ""
	return resolved.String(), true
}

// MetadataExtractor reads <meta> description/keywords/Open Graph tags and
// collects <img src> references, folding the teacher's image-discovery
// role (internal/assets) into ExtractedData instead of a download pipeline.
type MetadataExtractor struct{}

func NewMetadataExtractor() MetadataExtractor { return MetadataExtractor{} }

func (MetadataExtractor) Name() string { return "metadata" }

func (MetadataExtractor) Extract(ctx ExtractionContext, _ ExtractedFields) (ExtractedFields, failure.ClassifiedError) {
	if ctx.DocumentRoot == nil {
		return ExtractedFields{}, nil
	}
	doc := goquery.NewDocumentFromNode(ctx.DocumentRoot)
	data := map[string]string{}

	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		if name, ok := s.Attr("name"); ok {
			if content, ok := s.Attr("content"); ok && content != "" {
				data["meta:"+strings.ToLower(name)] = content
			}
			return
		}
		if prop, ok := s.Attr("property"); ok && strings.HasPrefix(prop, "og:") {
			if content, ok := s.Attr("content"); ok && content != "" {
				data["meta:"+prop] = content
			}
		}
	})

	var images []string
	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok && src != "" {
			if abs, ok := resolveAgainst(ctx.SourceUrl, src); ok {
				images = append(images, abs)
			}
		}
	})
	if encoded := marshalStrings(images); encoded != "" {
		data["images"] = encoded
	}

	return ExtractedFields{Data: data}, nil
}

// MarkdownExtractor renders ContentNode to Markdown, grounded on the
// teacher's mdconvert.convert (same plugin set, same ConvertNode call).
type MarkdownExtractor struct {
	metadataSink metadata.MetadataSink
}

func NewMarkdownExtractor(metadataSink metadata.MetadataSink) MarkdownExtractor {
	return MarkdownExtractor{metadataSink: metadataSink}
}

func (MarkdownExtractor) Name() string { return "markdown" }

func (m MarkdownExtractor) Extract(ctx ExtractionContext, _ ExtractedFields) (ExtractedFields, failure.ClassifiedError) {
	if ctx.ContentNode == nil {
		return ExtractedFields{}, nil
	}
	conv := converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)
	rendered, err := conv.ConvertNode(ctx.ContentNode)
	if err != nil {
		m.metadataSink.RecordError(time.Now(), "extractor", "MarkdownExtractor.Extract",
			metadata.CauseContentInvalid, err.Error(),
			[]metadata.Attribute{metadata.NewAttr(metadata.AttrURL, ctx.SourceUrl.String())})
		return ExtractedFields{}, nil
	}
	return ExtractedFields{Data: map[string]string{"markdown": string(rendered)}}, nil
}

// StructureExtractor walks the Markdown an earlier MarkdownExtractor
// produced and counts headings/paragraphs/code blocks, generalizing the
// teacher's normalize.validateStructure AST walk from a pass/fail
// structural gate into a descriptive summary.
type StructureExtractor struct{}

func NewStructureExtractor() StructureExtractor { return StructureExtractor{} }

func (StructureExtractor) Name() string { return "structure" }

func (StructureExtractor) Extract(_ ExtractionContext, accumulated ExtractedFields) (ExtractedFields, failure.ClassifiedError) {
	content, ok := accumulated.Data["markdown"]
	if !ok || strings.TrimSpace(content) == "" {
		return ExtractedFields{}, nil
	}

	doc := markdown.Parse([]byte(content), parser.New())

	var headings, paragraphs, codeBlocks, tables int
	ast.WalkFunc(doc, func(node ast.Node, entering bool) ast.WalkStatus {
		if !entering {
			return ast.GoToNext
		}
		switch node.(type) {
		case *ast.Heading:
			headings++
		case *ast.Paragraph:
			paragraphs++
		case *ast.CodeBlock:
			codeBlocks++
		case *ast.Table:
			tables++
		}
		return ast.GoToNext
	})

	summary := fmt.Sprintf("headings=%d;paragraphs=%d;codeblocks=%d;tables=%d", headings, paragraphs, codeBlocks, tables)
	return ExtractedFields{Data: map[string]string{"structure": summary}}, nil
}

package extractor

import (
	"encoding/json"
	"errors"
	"mime"
	"net/url"
	"time"

	"github.com/keruna/crawlkit/internal/fetcher"
	"github.com/keruna/crawlkit/internal/metadata"
	"github.com/keruna/crawlkit/pkg/failure"
)

/*
Responsibilities
- Dispatch a downloaded document to the right parsing strategy by content type
- For HTML, drive DomExtractor to find the content container and then run a
  chain of named extractors over it
- Merge every extractor's contribution into one ParseResult

Non-HTML documents never reach DomExtractor or the extractor chain: text
bodies are copied through as-is, JSON bodies are stashed under
ExtractedData, and anything else is passed through unparsed.
*/

// ParseResult is the outcome of extraction, keyed by the page's own URL.
type ParseResult struct {
	Url           url.URL
	IsSuccess     bool
	Title         string
	TextContent   string
	Links         []string
	ExtractedData map[string]string
	ErrorMessage  string
}

// Parser is the Parser/Extractor (component J).
type Parser struct {
	metadataSink metadata.MetadataSink
	dom          DomExtractor
	chain        []NamedExtractor
}

// NewParser builds a Parser. chain runs in order for every HTML document;
// Register appends user-supplied extractors to the end of that order.
func NewParser(metadataSink metadata.MetadataSink, dom DomExtractor, chain ...NamedExtractor) *Parser {
	return &Parser{
		metadataSink: metadataSink,
		dom:          dom,
		chain:        chain,
	}
}

// Register appends a user-supplied extractor to the chain, run after the
// built-in ones on every subsequent Parse call.
func (p *Parser) Register(e NamedExtractor) {
	p.chain = append(p.chain, e)
}

// Parse dispatches download by its declared Content-Type, per §4.J.
func (p *Parser) Parse(sourceUrl url.URL, download fetcher.DownloadResult) (ParseResult, failure.ClassifiedError) {
	mediaType, _, err := mime.ParseMediaType(download.ContentType)
	if err != nil {
		mediaType = download.ContentType
	}

	switch {
	case mediaType == "text/html" || mediaType == "application/xhtml+xml":
		return p.parseHTML(sourceUrl, download)
	case mediaType == "application/json":
		return ParseResult{
			Url:           sourceUrl,
			IsSuccess:     true,
			ExtractedData: map[string]string{"json": download.Content},
		}, nil
	case len(mediaType) >= 5 && mediaType[:5] == "text/":
		return ParseResult{
			Url:         sourceUrl,
			IsSuccess:   true,
			TextContent: download.Content,
		}, nil
	default:
		return ParseResult{Url: sourceUrl, IsSuccess: true}, nil
	}
}

func (p *Parser) parseHTML(sourceUrl url.URL, download fetcher.DownloadResult) (ParseResult, failure.ClassifiedError) {
	extraction, err := p.dom.Extract(sourceUrl, []byte(download.Content))
	if err != nil {
		return ParseResult{Url: sourceUrl, IsSuccess: false, ErrorMessage: err.Error()}, err
	}

	ctx := ExtractionContext{
		SourceUrl:    sourceUrl,
		DocumentRoot: extraction.DocumentRoot,
		ContentNode:  extraction.ContentNode,
	}

	accumulated := ExtractedFields{Data: map[string]string{}}
	for _, named := range p.chain {
		fields, extractErr := named.Extract(ctx, accumulated)
		if extractErr != nil {
			var extractionError *ExtractionError
			errors.As(extractErr, &extractionError)
			p.metadataSink.RecordError(
				time.Now(),
				"extractor",
				"Parser.Parse:"+named.Name(),
				mapExtractionErrorToMetadataCause(extractionError),
				extractErr.Error(),
				[]metadata.Attribute{metadata.NewAttr(metadata.AttrURL, sourceUrl.String())},
			)
			continue
		}
		accumulated = mergeExtractedFields(accumulated, fields)
	}

	return ParseResult{
		Url:           sourceUrl,
		IsSuccess:     true,
		Title:         accumulated.Title,
		TextContent:   accumulated.TextContent,
		Links:         accumulated.Links,
		ExtractedData: accumulated.Data,
	}, nil
}

func mergeExtractedFields(base, next ExtractedFields) ExtractedFields {
	if next.Title != "" && base.Title == "" {
		base.Title = next.Title
	}
	if next.TextContent != "" && base.TextContent == "" {
		base.TextContent = next.TextContent
	}
	base.Links = append(base.Links, next.Links...)
	for k, v := range next.Data {
		base.Data[k] = v
	}
	return base
}

// marshalStrings is a small helper shared by extractors that stash a slice
// under a single ExtractedData key (e.g. discovered image URLs).
func marshalStrings(values []string) string {
	if len(values) == 0 {
		return ""
	}
	encoded, err := json.Marshal(values)
	if err != nil {
		return ""
	}
	return string(encoded)
}

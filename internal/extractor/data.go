package extractor

import "golang.org/x/net/html"

// ExtractionResult holds the extraction outcome.
// DocumentRoot is the original parsed HTML document.
// ContentNode is the extracted meaningful content node (semantic container).
type ExtractionResult struct {
	DocumentRoot *html.Node
	ContentNode  *html.Node
}

// ExtractParam carries the extraction knobs on config.Config one-for-one.
// The extractor reads only BodySpecificityBias and LinkDensityThreshold
// (layer 3 scoring); the score multipliers and isMeaningful thresholds in
// dom.go are fixed at the default values, and the other fields are not read.
type ExtractParam struct {
	BodySpecificityBias                 float64
	LinkDensityThreshold                float64
	ScoreMultiplierNonWhitespaceDivisor float64
	ScoreMultiplierParagraphs           float64
	ScoreMultiplierHeadings             float64
	ScoreMultiplierCodeBlocks           float64
	ScoreMultiplierListItems            float64
	ThresholdMinNonWhitespace            int
	ThresholdMinHeadings                 int
	ThresholdMinParagraphsOrCode         int
	ThresholdMaxLinkDensity              float64
}

// DefaultExtractParam returns the component design's documented defaults.
func DefaultExtractParam() ExtractParam {
	return ExtractParam{
		BodySpecificityBias:                 0.75,
		LinkDensityThreshold:                0.80,
		ScoreMultiplierNonWhitespaceDivisor: 50.0,
		ScoreMultiplierParagraphs:           5.0,
		ScoreMultiplierHeadings:             10.0,
		ScoreMultiplierCodeBlocks:           15.0,
		ScoreMultiplierListItems:            2.0,
		ThresholdMinNonWhitespace:           50,
		ThresholdMinHeadings:                0,
		ThresholdMinParagraphsOrCode:        1,
		ThresholdMaxLinkDensity:             0.8,
	}
}

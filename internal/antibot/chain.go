package antibot

import (
	"time"

	"github.com/keruna/crawlkit/internal/metadata"
)

// Chain runs its Detectors in a fixed order, honoring the first one that
// fires. Custom detectors append after the defaults; the defaults'
// relative order never changes.
type Chain struct {
	detectors    []Detector
	metadataSink metadata.MetadataSink
}

// NewChain builds the default detector chain in the order fixed by the
// component design: Captcha, RateLimit, IpBlock, JsChallenge,
// CookieTracking, UserAgent, RequestDelay.
func NewChain(metadataSink metadata.MetadataSink) *Chain {
	return &Chain{
		metadataSink: metadataSink,
		detectors: []Detector{
			captchaDetector{},
			rateLimitDetector{},
			ipBlockDetector{},
			jsChallengeDetector{},
			cookieTrackingDetector{},
			userAgentDetector{},
			requestDelayDetector{},
		},
	}
}

// Append adds a custom detector to the end of the chain.
func (c *Chain) Append(d Detector) {
	c.detectors = append(c.detectors, d)
}

// Inspect runs the chain against resp, short-circuiting on the first
// detector that fires. A nil error means no countermeasure was detected.
func (c *Chain) Inspect(fetchURL string, resp Response) (Verdict, *DetectionError) {
	for _, d := range c.detectors {
		verdict, fired := d.Detect(resp)
		if !fired {
			continue
		}
		c.metadataSink.RecordError(
			time.Now(),
			"antibot",
			"Chain.Inspect",
			metadata.CausePolicyDisallow,
			verdict.Reason,
			[]metadata.Attribute{
				metadata.NewAttr(metadata.AttrURL, fetchURL),
				metadata.NewAttr(metadata.AttrField, string(verdict.Detector)),
			},
		)
		return verdict, &DetectionError{Verdict: verdict, RetryAfterSeconds: verdict.RetryAfterSeconds}
	}
	return Verdict{}, nil
}

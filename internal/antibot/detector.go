package antibot

import (
	"strconv"
	"strings"
)

// Detector inspects a Response and reports whether it fired.
type Detector interface {
	Name() DetectorName
	Detect(resp Response) (Verdict, bool)
}

var captchaMarkers = []string{
	"captcha", "recaptcha", "hcaptcha", "验证码", "人机验证",
}

var ipBlockMarkers = []string{
	"blocked", "access denied", "banned", "your ip has been", "ip address has been blocked",
}

var jsChallengeMarkers = []string{
	"challenge-form", "jschl-answer", "checking your browser", "cf-browser-verification", "ddos protection by",
}

var trackingCookieNames = []string{
	"_ga", "_gid", "_fbp", "__cf", "_gcl", "optimizely", "_uetsid", "_uetvid", "amplitude",
}

var userAgentRejectMarkers = []string{
	"user-agent", "user agent not allowed", "bot detected", "automated requests",
}

var requestDelayMarkers = []string{
	"please wait", "slow down", "rate limiting in effect", "throttle",
}

func containsAnyFold(haystack string, needles []string) (string, bool) {
	lower := strings.ToLower(haystack)
	for _, n := range needles {
		if strings.Contains(lower, strings.ToLower(n)) {
			return n, true
		}
	}
	return "", false
}

type captchaDetector struct{}

func (captchaDetector) Name() DetectorName { return DetectorCaptcha }

func (captchaDetector) Detect(resp Response) (Verdict, bool) {
	if marker, ok := containsAnyFold(resp.Body, captchaMarkers); ok {
		return Verdict{
			Blocked:         true,
			Detector:        DetectorCaptcha,
			Reason:          "body contains captcha marker: " + marker,
			SuggestedAction: ActionAbandon,
		}, true
	}
	return Verdict{}, false
}

type rateLimitDetector struct{}

func (rateLimitDetector) Name() DetectorName { return DetectorRateLimit }

func (rateLimitDetector) Detect(resp Response) (Verdict, bool) {
	if resp.StatusCode != 429 {
		return Verdict{}, false
	}
	retryAfter := parseRetryAfter(resp.Headers)
	return Verdict{
		Blocked:           true,
		Detector:          DetectorRateLimit,
		Reason:            "received 429 Too Many Requests",
		RetryAfterSeconds: retryAfter,
		SuggestedAction:   ActionRetryLater,
	}, true
}

type ipBlockDetector struct{}

func (ipBlockDetector) Name() DetectorName { return DetectorIPBlock }

func (ipBlockDetector) Detect(resp Response) (Verdict, bool) {
	if resp.StatusCode != 403 {
		return Verdict{}, false
	}
	if marker, ok := containsAnyFold(resp.Body, ipBlockMarkers); ok {
		return Verdict{
			Blocked:         true,
			Detector:        DetectorIPBlock,
			Reason:          "403 with blocklist phrase: " + marker,
			SuggestedAction: ActionChangeProxy,
		}, true
	}
	return Verdict{}, false
}

type jsChallengeDetector struct{}

func (jsChallengeDetector) Name() DetectorName { return DetectorJSChallenge }

func (jsChallengeDetector) Detect(resp Response) (Verdict, bool) {
	if marker, ok := containsAnyFold(resp.Body, jsChallengeMarkers); ok {
		return Verdict{
			Blocked:         true,
			Detector:        DetectorJSChallenge,
			Reason:          "body contains JS challenge marker: " + marker,
			SuggestedAction: ActionRetryLater,
		}, true
	}
	return Verdict{}, false
}

type cookieTrackingDetector struct{}

func (cookieTrackingDetector) Name() DetectorName { return DetectorCookieTracking }

func (cookieTrackingDetector) Detect(resp Response) (Verdict, bool) {
	setCookies := resp.Headers["Set-Cookie"]
	if len(setCookies) <= 10 {
		return Verdict{}, false
	}
	matches := 0
	for _, c := range setCookies {
		if _, ok := containsAnyFold(c, trackingCookieNames); ok {
			matches++
		}
	}
	if matches > 5 {
		return Verdict{
			Blocked:         true,
			Detector:        DetectorCookieTracking,
			Reason:          "excessive tracking cookies set",
			SuggestedAction: ActionChangeUA,
		}, true
	}
	return Verdict{}, false
}

type userAgentDetector struct{}

func (userAgentDetector) Name() DetectorName { return DetectorUserAgent }

func (userAgentDetector) Detect(resp Response) (Verdict, bool) {
	if resp.StatusCode != 403 {
		return Verdict{}, false
	}
	if marker, ok := containsAnyFold(resp.Body, userAgentRejectMarkers); ok {
		return Verdict{
			Blocked:         true,
			Detector:        DetectorUserAgent,
			Reason:          "403 mentioning user agent rejection: " + marker,
			SuggestedAction: ActionChangeUA,
		}, true
	}
	return Verdict{}, false
}

type requestDelayDetector struct{}

func (requestDelayDetector) Name() DetectorName { return DetectorRequestDelay }

func (requestDelayDetector) Detect(resp Response) (Verdict, bool) {
	if marker, ok := containsAnyFold(resp.Body, requestDelayMarkers); ok {
		return Verdict{
			Blocked:         true,
			Detector:        DetectorRequestDelay,
			Reason:          "body contains throttle marker: " + marker,
			SuggestedAction: ActionRetryLater,
		}, true
	}
	return Verdict{}, false
}

func parseRetryAfter(headers map[string][]string) int {
	values := headers["Retry-After"]
	if len(values) == 0 {
		return 0
	}
	seconds, err := strconv.Atoi(strings.TrimSpace(values[0]))
	if err != nil {
		return 0
	}
	return seconds
}

package proxypool

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Strategy selects how GetNext picks among enabled proxies.
type Strategy string

const (
	RoundRobin   Strategy = "round_robin"
	Random       Strategy = "random"
	BySuccessRate Strategy = "by_success_rate"
	ByUsage      Strategy = "by_usage"
)

// disableFailThreshold/disableSuccessRateThreshold implement the invariant:
// a proxy auto-disables once it has failed at least this many times AND its
// success rate has dropped below the threshold.
const (
	disableFailThreshold      = 5
	disableSuccessRateThreshold = 0.2
)

// Record is one proxy's identity and accounting. Grounded on the §3 data
// model's ProxyRecord.
type Record struct {
	Host        string
	Port        int
	Protocol    string
	Username    string
	Password    string
	SuccessCount int
	FailCount    int
	LastUsed     time.Time
	LastFailed   time.Time
	Enabled      bool
}

// SuccessRate returns the fraction of recorded attempts that succeeded, or
// 1.0 when no attempts have been recorded yet (an untested proxy is
// presumed good until proven otherwise).
func (r *Record) SuccessRate() float64 {
	total := r.SuccessCount + r.FailCount
	if total == 0 {
		return 1.0
	}
	return float64(r.SuccessCount) / float64(total)
}

// URL renders the proxy as a url.URL suitable for http.Transport.Proxy.
func (r *Record) URL() *url.URL {
	host := fmt.Sprintf("%s:%d", r.Host, r.Port)
	u := &url.URL{Scheme: r.Protocol, Host: host}
	if r.Username != "" {
		u.User = url.UserPassword(r.Username, r.Password)
	}
	return u
}

// Parse accepts "host:port", "protocol://host:port", with optional
// credentials supplied out of band (proxy URLs rarely encode them safely in
// config files).
func Parse(raw string, username, password string) (Record, error) {
	protocol := "http"
	rest := raw
	if idx := strings.Index(raw, "://"); idx >= 0 {
		protocol = raw[:idx]
		rest = raw[idx+3:]
	}
	hostPort := strings.SplitN(rest, ":", 2)
	if len(hostPort) != 2 {
		return Record{}, fmt.Errorf("%w: %s", ErrInvalidProxyFormat, raw)
	}
	var port int
	if _, err := fmt.Sscanf(hostPort[1], "%d", &port); err != nil {
		return Record{}, fmt.Errorf("%w: %s", ErrInvalidProxyFormat, raw)
	}
	return Record{
		Host:     hostPort[0],
		Port:     port,
		Protocol: protocol,
		Username: username,
		Password: password,
		Enabled:  true,
	}, nil
}

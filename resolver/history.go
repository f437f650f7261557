package resolver

import "github.com/use-agent/unhide/fetcher"

// StepType tags a history entry.
type StepType string

const (
	StepRedirect StepType = "redirect"
	StepContent  StepType = "content"
	StepError    StepType = "error"
)

// Status is the overall outcome of a resolution.
type Status string

const (
	StatusFound            Status = "found"
	StatusError            Status = "error"
	StatusTooManyRedirects Status = "too_many_redirects"
)

// Kind names the redirect convention a classifier recognised.
type Kind string

const (
	KindNone          Kind = "none"
	KindVKCC          Kind = "vk_cc"
	KindVKAway        Kind = "vk_away"
	KindOKDK          Kind = "ok_dk"
	KindJSLocation    Kind = "js_location"
	KindMetaRefresh   Kind = "meta_refresh"
	KindLinkPub       Kind = "link_pub"
	KindDoubleQooBy   Kind = "double_qoo_by"
	KindHTTPRedirect  Kind = "http_redirect"
	KindRefreshHeader Kind = "refresh_header"
)

// Classification is the verdict of one classifier pass over a fetch.
type Classification struct {
	Redirect  bool   `json:"redirect"`
	Kind      Kind   `json:"kind"`
	TargetURL string `json:"target_url,omitempty"`
}

var noRedirect = Classification{Kind: KindNone}

// Step is one entry of the resolution audit trail.
type Step struct {
	Fetch          *fetcher.Result `json:"fetch"`
	Type           StepType        `json:"type"`
	Classification *Classification `json:"classification,omitempty"`
}

// Resolution is the result of chasing one URL.
type Resolution struct {
	// EndURL is empty when the chase was cut off by the step ceiling.
	EndURL    string `json:"end_url,omitempty"`
	Status    Status `json:"status"`
	History   []Step `json:"history"`
	StepCount int    `json:"step_count"`
}

// Last returns the final history entry, or nil for an empty history.
func (r *Resolution) Last() *Step {
	if len(r.History) == 0 {
		return nil
	}
	return &r.History[len(r.History)-1]
}

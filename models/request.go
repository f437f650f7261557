package models

// ResolveRequest is the payload for POST /api/v1/resolve.
type ResolveRequest struct {
	// URL is the short link or redirector to resolve. Required.
	URL string `json:"url" binding:"required,url"`

	// MaxSteps overrides the request ceiling for this resolution.
	// Default: server setting (5). Capped by the server's limit.
	MaxSteps int `json:"max_steps,omitempty" binding:"omitempty,min=1"`

	// Preview extracts title, description and fingerprints from the
	// destination page when the resolution is found.
	Preview bool `json:"preview,omitempty"`

	// IncludeBody keeps response bodies in the returned history.
	// Bodies are dropped by default.
	IncludeBody bool `json:"include_body,omitempty"`

	// MaxAge opts into the response cache: a cached resolution younger
	// than MaxAge seconds is returned instead of chasing again. 0 bypasses
	// the cache.
	MaxAge int `json:"max_age,omitempty" binding:"omitempty,min=0"`
}

// Defaults applies default values to unset fields and clamps MaxSteps.
func (r *ResolveRequest) Defaults(maxSteps, limit int) {
	if r.MaxSteps == 0 {
		r.MaxSteps = maxSteps
	}
	if limit > 0 && r.MaxSteps > limit {
		r.MaxSteps = limit
	}
}

package search

import (
	"time"

	"github.com/ncobase/placesearch/geo"
	"github.com/ncobase/placesearch/provider"
)

// Request is a normalized search request.
type Request struct {
	Query    string     `json:"query" binding:"required,max=500"`
	Location *geo.Point `json:"location,omitempty"`
	Filters  *Filters   `json:"filters,omitempty"`
	Language string     `json:"language,omitempty" binding:"omitempty,max=35"`
	Region   string     `json:"region,omitempty" binding:"omitempty,max=8"`
	Page     int        `json:"page,omitempty" binding:"omitempty,min=1,max=50"`

	SessionID string `json:"-"`
	UserID    string `json:"-"`
}

// Filters are restrictions known before the provider call.
type Filters struct {
	OpenNow       bool     `json:"open_now,omitempty"`
	Cuisines      []string `json:"cuisines,omitempty"`
	MinRating     float64  `json:"min_rating,omitempty" binding:"omitempty,gte=0,lte=5"`
	MaxPrice      int      `json:"max_price,omitempty" binding:"omitempty,gte=0,lte=4"`
	MaxDistanceKm float64  `json:"max_distance_km,omitempty" binding:"omitempty,gte=0"`
}

// IsZero reports whether no filter is set.
func (f *Filters) IsZero() bool {
	return f == nil || (!f.OpenNow && len(f.Cuisines) == 0 && f.MinRating == 0 && f.MaxPrice == 0 && f.MaxDistanceKm == 0)
}

// Constraints are restrictions applied after the provider call. Nil
// fields are unset.
type Constraints struct {
	OpenNow       *bool    `json:"open_now,omitempty"`
	MinRating     *float64 `json:"min_rating,omitempty"`
	MaxPrice      *int     `json:"max_price,omitempty"`
	MaxDistanceKm *float64 `json:"max_distance_km,omitempty"`
	CuisineKey    string   `json:"cuisine_key,omitempty"`
	Exclude       []string `json:"exclude,omitempty"`
}

// Kind is the response shape.
type Kind string

const (
	KindResults Kind = "results"
	KindClarify Kind = "clarify"
	KindStop    Kind = "stop"
	KindError   Kind = "error"
)

// Pagination describes a results page.
type Pagination struct {
	Page     int  `json:"page"`
	PageSize int  `json:"pageSize"`
	Total    int  `json:"total"`
	HasMore  bool `json:"hasMore"`
}

// ErrorInfo is the machine-readable part of a failed response.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ResultItem is one ranked place.
type ResultItem struct {
	provider.Place
	Score      float64  `json:"score"`
	DistanceKm *float64 `json:"distance_km,omitempty"`
	Link       string   `json:"link,omitempty"`
}

// Response is the pipeline output. Results is never nil; Pagination is
// only present for result responses.
type Response struct {
	RequestID  string           `json:"requestId"`
	Kind       Kind             `json:"kind"`
	Results    []ResultItem     `json:"results"`
	Pagination *Pagination      `json:"pagination,omitempty"`
	Message    string           `json:"message,omitempty"`
	Question   string           `json:"question,omitempty"`
	Language   string           `json:"language,omitempty"`
	Region     string           `json:"region,omitempty"`
	Mode       provider.Mode    `json:"mode,omitempty"`
	Error      *ErrorInfo       `json:"error,omitempty"`
	Timings    map[string]int64 `json:"timings,omitempty"`
}

// Stage names used in timings, progress and logs.
const (
	StageGate        = "gate"
	StageRoute       = "route"
	StageMapping     = "mapping"
	StageFilters     = "filters"
	StageProvider    = "provider"
	StageConstraints = "constraints"
	StagePostFilter  = "postfilter"
	StageRanking     = "ranking"
	StageAssemble    = "assemble"
)

// PipelineContext is the per-run state. It is never persisted.
type PipelineContext struct {
	RequestID string
	SessionID string
	StartTime time.Time
	Language  string
	Region    string
	Location  *geo.Point
	Tracked   bool
	Deferred  bool
	stage     string
	timings   map[string]time.Duration
}

func (pc *PipelineContext) record(stage string, d time.Duration) {
	pc.timings[stage] += d
}

// Timings returns stage durations in milliseconds.
func (pc *PipelineContext) Timings() map[string]int64 {
	out := make(map[string]int64, len(pc.timings))
	for k, v := range pc.timings {
		out[k] = v.Milliseconds()
	}
	return out
}

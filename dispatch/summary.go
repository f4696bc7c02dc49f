package dispatch

import (
	"time"

	"github.com/gotap/tapd/job"
)

// jobSummary is the JSON document returned for a single job (spec.md
// §6's job resource), and as one element of jobListSummary.
type jobSummary struct {
	JobID             string          `json:"jobId"`
	OwnerID           string          `json:"ownerId,omitempty"`
	Phase             string          `json:"phase"`
	Progression       string          `json:"progression,omitempty"`
	Quote             *time.Time      `json:"quote,omitempty"`
	CreationTime      time.Time       `json:"creationTime"`
	StartTime         *time.Time      `json:"startTime,omitempty"`
	EndTime           *time.Time      `json:"endTime,omitempty"`
	ExecutionDuration int64           `json:"executionDuration"`
	DestructionTime   time.Time       `json:"destructionTime"`
	Parameters        map[string]any  `json:"parameters"`
	Results           []resultSummary `json:"results,omitempty"`
	ErrorSummary      *errorSummary   `json:"errorSummary,omitempty"`
}

type resultSummary struct {
	ID       string `json:"id"`
	HRef     string `json:"href"`
	MimeType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

type errorSummary struct {
	Message    string `json:"message"`
	Kind       string `json:"kind"`
	DetailsRef string `json:"detailsRef,omitempty"`
}

// jobListSummary is the JSON document returned for a job list (spec.md
// §6's "list jobs" operation).
type jobListSummary struct {
	Jobs []jobSummary `json:"jobs"`
}

func toJobSummary(j *job.Job) jobSummary {
	s := jobSummary{
		JobID:             j.ID,
		OwnerID:           j.Owner,
		Phase:             j.Phase.String(),
		Progression:       j.Progression.String(),
		Quote:             j.Quote,
		CreationTime:      j.CreationTime,
		StartTime:         j.StartTime,
		EndTime:           j.EndTime,
		ExecutionDuration: int64(j.ExecutionDuration / time.Second),
		DestructionTime:   j.DestructionTime,
		Parameters:        paramsToMap(j),
	}
	for _, r := range j.Results {
		s.Results = append(s.Results, resultSummary{ID: r.ID, HRef: r.HRef, MimeType: r.MimeType, Size: r.Size})
	}
	if j.ErrorSummary != nil {
		s.ErrorSummary = &errorSummary{
			Message:    j.ErrorSummary.Message,
			Kind:       j.ErrorSummary.Kind.String(),
			DetailsRef: j.ErrorSummary.DetailsRef,
		}
	}
	return s
}

func paramsToMap(j *job.Job) map[string]any {
	m := map[string]any{
		"request": j.Params.Request,
		"lang":    j.Params.Lang,
		"version": j.Params.Version,
		"format":  j.Params.Format,
		"maxrec":  j.Params.MaxRec,
		"query":   j.Params.Query,
	}
	for k, v := range j.Params.Extras {
		m[k] = v
	}
	return m
}

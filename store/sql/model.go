package sqlstore

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/gotap/tapd/job"
	"github.com/gotap/tapd/param"
)

type uploadModel struct {
	Name string `json:"name"`
	URI  string `json:"uri"`
}

type errorSummaryModel struct {
	Message    string `json:"message"`
	Kind       uint8  `json:"kind"`
	DetailsRef string `json:"details_ref,omitempty"`
}

type resultModel struct {
	ID       string `json:"id"`
	HRef     string `json:"href"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

type jobModel struct {
	bun.BaseModel `bun:"table:jobs"`
	ID            string `bun:"id,pk"`
	Owner         string `bun:"owner,notnull,default:''"`

	Phase       job.Phase       `bun:"phase,notnull,default:0"`
	Progression job.Progression `bun:"progression,notnull,default:0"`

	CreationTime    time.Time  `bun:"creation_time,nullzero,notnull,default:current_timestamp"`
	StartTime       *time.Time `bun:"start_time,nullzero,default:null"`
	EndTime         *time.Time `bun:"end_time,nullzero,default:null"`
	DestructionTime time.Time  `bun:"destruction_time,notnull"`
	Quote           *time.Time `bun:"quote,nullzero,default:null"`

	ExecutionDuration time.Duration `bun:"execution_duration,notnull,default:0"`

	Request string              `bun:"request,notnull,default:''"`
	Lang    string              `bun:"lang,notnull,default:''"`
	Version string              `bun:"version,notnull,default:''"`
	Format  string              `bun:"format,notnull,default:''"`
	MaxRec  int64               `bun:"max_rec,notnull,default:-1"`
	Query   string              `bun:"query,notnull,default:''"`
	Uploads []uploadModel       `bun:"uploads,type:jsonb"`
	Extras  map[string]string   `bun:"extras,type:jsonb"`
	Results []resultModel       `bun:"results,type:jsonb"`
	Error   *errorSummaryModel  `bun:"error_summary,type:jsonb"`
}

func (jm *jobModel) toJob() *job.Job {
	uploads := make([]param.Upload, len(jm.Uploads))
	for i, u := range jm.Uploads {
		uploads[i] = param.Upload{Name: u.Name, URI: u.URI}
	}
	results := make([]job.Result, len(jm.Results))
	for i, r := range jm.Results {
		results[i] = job.Result{ID: r.ID, HRef: r.HRef, MimeType: r.MimeType, Size: r.Size}
	}
	var errSummary *job.ErrorSummary
	if jm.Error != nil {
		errSummary = &job.ErrorSummary{
			Message:    jm.Error.Message,
			Kind:       job.ErrorKind(jm.Error.Kind),
			DetailsRef: jm.Error.DetailsRef,
		}
	}
	return &job.Job{
		ID:                jm.ID,
		Owner:             jm.Owner,
		Phase:             jm.Phase,
		Progression:       jm.Progression,
		CreationTime:      jm.CreationTime,
		StartTime:         jm.StartTime,
		EndTime:           jm.EndTime,
		DestructionTime:   jm.DestructionTime,
		Quote:             jm.Quote,
		ExecutionDuration: jm.ExecutionDuration,
		Params: param.Set{
			Request: jm.Request,
			Lang:    jm.Lang,
			Version: jm.Version,
			Format:  jm.Format,
			MaxRec:  jm.MaxRec,
			Query:   jm.Query,
			Uploads: uploads,
			Extras:  jm.Extras,
		},
		Results:      results,
		ErrorSummary: errSummary,
	}
}

func fromJob(j *job.Job) *jobModel {
	uploads := make([]uploadModel, len(j.Params.Uploads))
	for i, u := range j.Params.Uploads {
		uploads[i] = uploadModel{Name: u.Name, URI: u.URI}
	}
	results := make([]resultModel, len(j.Results))
	for i, r := range j.Results {
		results[i] = resultModel{ID: r.ID, HRef: r.HRef, MimeType: r.MimeType, Size: r.Size}
	}
	var errSummary *errorSummaryModel
	if j.ErrorSummary != nil {
		errSummary = &errorSummaryModel{
			Message:    j.ErrorSummary.Message,
			Kind:       uint8(j.ErrorSummary.Kind),
			DetailsRef: j.ErrorSummary.DetailsRef,
		}
	}
	return &jobModel{
		ID:                j.ID,
		Owner:             j.Owner,
		Phase:             j.Phase,
		Progression:       j.Progression,
		CreationTime:      j.CreationTime,
		StartTime:         j.StartTime,
		EndTime:           j.EndTime,
		DestructionTime:   j.DestructionTime,
		Quote:             j.Quote,
		ExecutionDuration: j.ExecutionDuration,
		Request:           j.Params.Request,
		Lang:              j.Params.Lang,
		Version:           j.Params.Version,
		Format:            j.Params.Format,
		MaxRec:            j.Params.MaxRec,
		Query:             j.Params.Query,
		Uploads:           uploads,
		Extras:            j.Params.Extras,
		Results:           results,
		Error:             errSummary,
	}
}
